package source

import (
	"encoding/json"
	"io"
	"net/http"

	"codeberg.org/mutker/energymon/internal/errors"
)

const maxErrorBody = 512

// doJSON sends req and decodes a 200 response body into out. Other 2xx,
// 3xx and 4xx statuses are rejected; 5xx and 429 are reported as
// retryable bad statuses.
func doJSON(client *http.Client, req *http.Request, out any) error {
	errFactory := errors.New()

	resp, err := client.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		data := struct {
			Method string
			URL    string
			Status int
			Body   string
		}{req.Method, req.URL.Redacted(), resp.StatusCode, string(body)}

		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return errFactory.WithData(ErrBadStatus, data)
		}
		return errFactory.WithData(ErrRejected, data)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errFactory.Wrap(ErrDecode, err)
	}

	return nil
}

func missingField(source, field string) error {
	return errors.New().WithData(ErrMissingField, struct {
		Source string
		Field  string
	}{source, field})
}

func defaultClient(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}
