package remote

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Ref is the parsed form of a job id issued by the AWS-backed stores. It
// carries everything needed to address the upload after a restart:
//
//	glacier://vault?uploadId=ID
//	s3://bucket/key?partSize=N&uploadId=ID
type Ref struct {
	Scheme    string
	Container string
	Key       string
	UploadID  string
	PartSize  int64
}

func (r Ref) String() string {
	q := url.Values{"uploadId": {r.UploadID}}
	if r.PartSize > 0 {
		q.Set("partSize", strconv.FormatInt(r.PartSize, 10))
	}
	u := url.URL{Scheme: r.Scheme, Host: r.Container, RawQuery: q.Encode()}
	if r.Key != "" {
		u.Path = "/" + r.Key
	}
	return u.String()
}

// ParseRef parses a job id of the given scheme.
func ParseRef(scheme, jobID string) (Ref, error) {
	u, err := url.Parse(jobID)
	if err != nil {
		return Ref{}, fmt.Errorf("bad job id %q: %w", jobID, err)
	}
	if u.Scheme != scheme {
		return Ref{}, fmt.Errorf("job id %q is not a %s upload", jobID, scheme)
	}

	r := Ref{
		Scheme:    u.Scheme,
		Container: u.Host,
		Key:       strings.TrimPrefix(u.Path, "/"),
		UploadID:  u.Query().Get("uploadId"),
	}
	if r.Container == "" || r.UploadID == "" {
		return Ref{}, fmt.Errorf("job id %q lacks container or upload id", jobID)
	}
	if ps := u.Query().Get("partSize"); ps != "" {
		if r.PartSize, err = strconv.ParseInt(ps, 10, 64); err != nil {
			return Ref{}, fmt.Errorf("job id %q: bad part size: %w", jobID, err)
		}
	}
	return r, nil
}
