package nativeexec

import (
	"context"
	"errors"
	"net/http"

	"github.com/specialistvlad/scriptloader/internal/ctxlog"
	"github.com/specialistvlad/scriptloader/internal/locator"
	"github.com/specialistvlad/scriptloader/internal/scripterr"
)

const defaultContentType = "text/plain"

// download fetches the bytes described by l. The locator's timeout bounds
// the whole request.
func (e *Executor) download(ctx context.Context, l *locator.Normalized) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	target := l.RequestURL()
	req := e.client.R().
		SetContext(ctx).
		SetHeaders(l.Headers)

	method := http.MethodGet
	if l.Method == locator.MethodPost {
		method = http.MethodPost
		if l.Body != nil {
			contentType := l.Headers["content-type"]
			if contentType == "" {
				contentType = defaultContentType
			}
			req.SetHeader("Content-Type", contentType).SetBody(*l.Body)
		}
	}

	ctxlog.FromContext(ctx).Debug("Downloading script.", "unique_id", l.UniqueID, "method", method, "url", target)
	resp, err := req.Execute(method, target)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, scripterr.NewNative(scripterr.RequestTimeout, err, "request to %s timed out after %s", target, l.Timeout)
		}
		return nil, scripterr.NewNative(scripterr.NetworkFailure, err, "request to %s failed", target)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, scripterr.NewNative(scripterr.RequestFailure, nil,
			"request should have returned with 200 HTTP status, but instead it received %d", resp.StatusCode())
	}
	return resp.Bytes(), nil
}

// downloadAndCache downloads l, verifies its signature and stores the bundle
// for later evaluation.
func (e *Executor) downloadAndCache(ctx context.Context, l *locator.Normalized) ([]byte, error) {
	raw, err := e.download(ctx, l)
	if err != nil {
		return nil, err
	}
	bundle, err := e.verifier.check(l.VerifyScriptSignature, raw)
	if err != nil {
		return nil, scripterr.NewNative(scripterr.CodeSigningFailure, err, "the bundle verification failed for %s", l.URL)
	}
	if err := e.writeBundle(l.UniqueID, bundle); err != nil {
		return nil, scripterr.NewNative(scripterr.ScriptCachingFailure, err, "failed to cache %s", l.UniqueID)
	}
	return bundle, nil
}

func (e *Executor) writeBundle(uniqueID string, bundle []byte) error {
	if err := e.ensureScriptsDir(); err != nil {
		return err
	}
	return writeFileAtomic(e.bundlePath(uniqueID), bundle)
}
