package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/rhuss/wandel/pkg/catalog"
)

// maxErrorBody bounds how much of a failed response is read for its
// message.
const maxErrorBody = 64 << 10

// Forwarder runs transforms on the engine that declared them, using the
// same multipart upload callers send to POST /transform.
type Forwarder struct {
	Client *http.Client
}

// Forward uploads in to baseURL and copies the result to out. Only the
// options the remote transformer accepts are sent.
func (f *Forwarder) Forward(ctx context.Context, baseURL string, group catalog.OptionGroup, req *Request, in io.Reader, out io.Writer) error {
	endpoint := strings.TrimSuffix(baseURL, "/") + "/transform"

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, group, req, in))
	}()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return Internal("Failed to forward the transform", err)
	}
	hreq.Header.Set("Content-Type", mw.FormDataContentType())

	client := http.DefaultClient
	if f.Client != nil {
		client = f.Client
	}
	resp, err := client.Do(hreq)
	if err != nil {
		return Internal("Failed to forward the transform to "+baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &TransformError{
			Status:  resp.StatusCode,
			Message: remoteMessage(resp),
			Err:     fmt.Errorf("POST %s: %s", endpoint, resp.Status),
		}
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		return Resource("Failed to write the target file", err)
	}
	return nil
}

func writeForm(mw *multipart.Writer, group catalog.OptionGroup, req *Request, in io.Reader) error {
	fields := map[string]string{
		"sourceMimetype": req.SourceMimetype,
		"targetMimetype": req.TargetMimetype,
	}
	possible := catalog.GatherPossibleOptions(group, req.Options)
	for name, value := range req.Options {
		if _, ok := possible[name]; ok {
			fields[name] = value
		}
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := mw.WriteField(name, fields[name]); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("file", "source."+ExtensionForMimetype(req.SourceMimetype))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, in); err != nil {
		return err
	}
	return mw.Close()
}

// remoteMessage extracts the message of an error response. Engines answer
// with {"error": {"message": ...}}, older ones with {"message": ...}.
func remoteMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var parsed struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		switch {
		case parsed.Error.Message != "":
			return parsed.Error.Message
		case parsed.Message != "":
			return parsed.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return resp.Status
}
