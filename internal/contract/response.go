package contract

import "fmt"

// Err returns the error string carried by the response, if any. The typed
// responses take precedence over the legacy flat field.
func (r *ActionResponse) Err() string {
	if r.HTTPResponse != nil && r.HTTPResponse.Error != "" {
		return r.HTTPResponse.Error
	}
	if r.PlainTextResponse != nil && r.PlainTextResponse.Error != "" {
		return r.PlainTextResponse.Error
	}
	return ""
}

// Normalize populates the legacy Response field from the typed response when
// a client omits it. Older language-server clients set only Response; newer
// ones set only the typed fields. After Normalize both views agree.
func (r *ActionResponse) Normalize() {
	if r.Response != "" {
		return
	}
	switch {
	case r.PlainTextResponse != nil:
		r.Response = plainTextBody(r.PlainTextResponse)
	case r.HTTPResponse != nil:
		r.Response = httpBody(r.HTTPResponse)
	}
}

func plainTextBody(p *PlainTextResponse) string {
	if p.Error != "" {
		return fmt.Sprintf("Error running tool: %s", p.Error)
	}
	return p.Response
}

func httpBody(h *HTTPResponse) string {
	if h.Error != "" {
		return fmt.Sprintf("Error: %s", h.Error)
	}
	if h.StatusCode < 200 || h.StatusCode >= 300 {
		return fmt.Sprintf("Error: unexpected status code: %d", h.StatusCode)
	}
	return h.Body
}
