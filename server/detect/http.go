package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPDetector talks to the face/emotion inference sidecar over HTTP.
// The sidecar owns the models; we just ship it JPEG frames.
//
// POST {base}/detect/general          body: image/jpeg
// POST {base}/detect/subject/{id}     body: image/jpeg
//
// 200 -> Detection JSON, 204 -> no face in frame.
type HTTPDetector struct {
	baseUrl string
	client  *http.Client
}

func NewHTTPDetector(baseUrl string, timeout time.Duration) *HTTPDetector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPDetector{
		baseUrl: baseUrl,
		client:  &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDetector) DetectGeneral(frame *Frame) (*Detection, error) {
	return d.post(d.baseUrl+"/detect/general", frame)
}

func (d *HTTPDetector) DetectForSubject(frame *Frame, subject string) (*Detection, error) {
	det, err := d.post(d.baseUrl+"/detect/subject/"+subject, frame)
	if det != nil {
		// The sidecar echoes the subject back, but we don't trust it to.
		det.Subject = subject
	}
	return det, err
}

func (d *HTTPDetector) Close() {
	d.client.CloseIdleConnections()
}

func (d *HTTPDetector) post(url string, frame *Frame) (*Detection, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(frame.JPEG))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		det := &Detection{}
		if err := json.NewDecoder(resp.Body).Decode(det); err != nil {
			return nil, fmt.Errorf("Failed to decode detection response: %w", err)
		}
		if det.Time.IsZero() {
			det.Time = frame.PTS
		}
		return det, nil
	case http.StatusNoContent:
		return nil, nil
	default:
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Detector returned %v (%v)", resp.Status, string(msg))
	}
}
