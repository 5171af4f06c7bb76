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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/nwrx/nmcp/pkg/activation"
	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/errs"
	"github.com/nwrx/nmcp/pkg/resources"
)

// openSSE resolves the server, activates it if Idle, opens an upstream
// channel (plain HTTP for sse transport, pod exec-attach for stdio) and
// pumps frames downstream until the client disconnects or the upstream
// errors out.
func (r *Router) openSSE(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	key := types.NamespacedName{Namespace: r.namespace, Name: name}

	server, err := r.kubeClient.GetServer(req.Context(), key)
	if err != nil {
		writeErr(w, err)
		return
	}
	if server == nil {
		writeNotFound(w, "NotFound", "server not found")
		return
	}

	endpoint, err := r.waiter.Activate(req.Context(), r.namespace, name, r.activationTimeout)
	if err != nil {
		writeErr(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Fatal", "streaming unsupported")
		return
	}

	upstream, sendFn, err := r.dialUpstream(req.Context(), server, endpoint)
	if err != nil {
		writeErr(w, errs.NewUpstreamIOError(err))
		return
	}
	defer upstream.Close()

	sessionID := uuid.New().String()
	sess := &session{id: sessionID, namespace: r.namespace, server: name, send: sendFn, close: func() { _ = upstream.Close() }}
	r.sessions.add(sess)
	defer r.sessions.remove(sessionID)

	r.accountant.Open(key)
	sseSessionsTotal.WithLabelValues(r.namespace, name).Inc()
	openSessionsGauge.WithLabelValues(r.namespace, name).Inc()
	defer func() {
		r.accountant.Close(key)
		openSessionsGauge.WithLabelValues(r.namespace, name).Dec()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: endpoint\ndata: /api/v1/servers/%s/message?session=%s\n\n", name, sessionID)
	flusher.Flush()

	r.pumpUpstream(req.Context(), w, flusher, upstream)
}

// pumpUpstream copies whole lines from upstream into SSE "data:" frames until
// upstream closes, the request context is cancelled, or a write fails.
func (r *Router) pumpUpstream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, upstream io.Reader) {
	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", scanner.Text()); err != nil {
			return
		}
		flusher.Flush()
	}
}

// dialUpstream opens the upstream channel for endpoint and returns a reader
// for downstream-bound frames plus a send func for client-to-server
// messages, dispatching on transport kind.
func (r *Router) dialUpstream(ctx context.Context, server *nmcpv1.MCPServer, endpoint activation.Endpoint) (io.ReadCloser, func(context.Context, []byte) error, error) {
	if endpoint.Transport == nmcpv1.TransportStdio {
		return r.dialStdio(ctx, server)
	}
	return r.dialSSE(ctx, endpoint)
}

// dialStdio attaches to the running container's stdin/stdout (adapted from
// "exec" to "attach": the gateway speaks to the already-running process, it
// does not spawn a new one).
func (r *Router) dialStdio(ctx context.Context, server *nmcpv1.MCPServer) (io.ReadCloser, func(context.Context, []byte) error, error) {
	if r.restConfig == nil || r.clientset == nil {
		return nil, nil, fmt.Errorf("stdio transport requires a configured kube rest.Config")
	}

	pr, pw := io.Pipe()
	stdinR, stdinW := io.Pipe()

	req := r.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(server.Name).
		Namespace(server.Namespace).
		SubResource("attach").
		VersionedParams(&corev1.PodAttachOptions{
			Container: resources.ContainerName,
			Stdin:     true,
			Stdout:    true,
			Stderr:    false,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(r.restConfig, "POST", req.URL())
	if err != nil {
		_ = pw.Close()
		_ = stdinW.Close()
		return nil, nil, err
	}

	go func() {
		streamErr := exec.StreamWithContext(ctx, remotecommand.StreamOptions{
			Stdin:  stdinR,
			Stdout: pw,
		})
		_ = pw.CloseWithError(streamErr)
	}()

	send := func(_ context.Context, payload []byte) error {
		_, err := stdinW.Write(append(payload, '\n'))
		return err
	}
	return &stdioUpstream{r: pr, stdinW: stdinW}, send, nil
}

// stdioUpstream bundles the attach session's two pipes so Close tears down
// both directions.
type stdioUpstream struct {
	r      *io.PipeReader
	stdinW *io.PipeWriter
}

func (s *stdioUpstream) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *stdioUpstream) Close() error {
	_ = s.stdinW.Close()
	return s.r.Close()
}

// dialSSE opens a plain HTTP SSE connection to the upstream Service.
func (r *Router) dialSSE(ctx context.Context, endpoint activation.Endpoint) (io.ReadCloser, func(context.Context, []byte) error, error) {
	url := fmt.Sprintf("http://%s:%d/sse", endpoint.DNSName, endpoint.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, nil, fmt.Errorf("upstream sse open failed: status %d", resp.StatusCode)
	}

	messageURL := fmt.Sprintf("http://%s:%d/message", endpoint.DNSName, endpoint.Port)
	send := func(ctx context.Context, payload []byte) error {
		mreq, err := http.NewRequestWithContext(ctx, http.MethodPost, messageURL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		mresp, err := http.DefaultClient.Do(mreq)
		if err != nil {
			return err
		}
		return mresp.Body.Close()
	}
	return resp.Body, send, nil
}
