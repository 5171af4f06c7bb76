/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/nwrx/nmcp/pkg/errs"
)

// errorEnvelope is the {error:{kind,message}} body every non-2xx response
// carries.
type errorEnvelope struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// statusFor maps an error taxonomy Kind to an HTTP status:
// ActivationTimeout→504, ActivationFailed/UpstreamIoError→502,
// Validation→422, PoolExhausted/Conflict→409, everything else→500 (404 is
// handled by callers directly, since "not found" there means "no such CR",
// not an errs.Kind).
func statusFor(err error) int {
	switch errs.Kind(err) {
	case "ActivationTimeout":
		return http.StatusGatewayTimeout
	case "ActivationFailed", "UpstreamIoError":
		return http.StatusBadGateway
	case "Validation":
		return http.StatusUnprocessableEntity
	case "PoolExhausted", "Conflict":
		return http.StatusConflict
	case "Fatal":
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	env := errorEnvelope{}
	env.Error.Kind = kind
	env.Error.Message = message
	writeJSON(w, status, env)
}

// writeErr translates err via the taxonomy and writes the envelope.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), errs.Kind(err), err.Error())
}

func writeNotFound(w http.ResponseWriter, kind, message string) {
	writeError(w, http.StatusNotFound, kind, message)
}
