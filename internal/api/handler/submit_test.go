package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/akazachkov/queryflow/internal/gateway"
)

// --- mock Submitter ---

type mockSubmitter struct {
	fn func(sub gateway.Submission) (string, error)
}

func (m *mockSubmitter) Submit(_ context.Context, sub gateway.Submission) (string, error) {
	return m.fn(sub)
}

func acceptingSubmitter(jobID string) *mockSubmitter {
	return &mockSubmitter{fn: func(gateway.Submission) (string, error) {
		return jobID, nil
	}}
}

// --- helpers ---

func multipartReq(t *testing.T, audio []byte, audioName, questionnaire string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mp := multipart.NewWriter(&buf)
	if audio != nil {
		fw, err := mp.CreateFormFile("audio", audioName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(audio)
	}
	if questionnaire != "" {
		mp.WriteField("questionnaire", questionnaire)
	}
	mp.Close()

	r := httptest.NewRequest(http.MethodPost, "/api/v1/queries", &buf)
	r.Header.Set("Content-Type", mp.FormDataContentType())
	return r
}

func formReq(questionnaire string) *http.Request {
	form := url.Values{}
	if questionnaire != "" {
		form.Set("questionnaire", questionnaire)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/queries", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env.Data
}

func decodeErrCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env.Error.Code
}

// --- tests ---

func TestSubmit_Questionnaire(t *testing.T) {
	h := NewSubmitHandler(acceptingSubmitter("job-1"))
	rec := httptest.NewRecorder()
	h(rec, multipartReq(t, nil, "", "Q1"))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	if data["job_id"] != "job-1" {
		t.Errorf("job_id = %v, want job-1", data["job_id"])
	}
	if data["status"] != "processing" {
		t.Errorf("status = %v, want processing", data["status"])
	}
}

func TestSubmit_QuestionnaireURLEncoded(t *testing.T) {
	h := NewSubmitHandler(acceptingSubmitter("job-2"))
	rec := httptest.NewRecorder()
	h(rec, formReq("Q2"))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmit_Audio(t *testing.T) {
	var got gateway.Submission
	sub := &mockSubmitter{fn: func(s gateway.Submission) (string, error) {
		got = s
		return "job-3", nil
	}}
	h := NewSubmitHandler(sub)
	rec := httptest.NewRecorder()
	h(rec, multipartReq(t, []byte("riff"), "take.wav", ""))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.AudioFilename != "take.wav" {
		t.Errorf("filename = %q, want take.wav", got.AudioFilename)
	}
	body, _ := io.ReadAll(got.Audio)
	if string(body) != "riff" {
		t.Errorf("audio body = %q", body)
	}
}

func TestSubmit_BothInputsRejected(t *testing.T) {
	h := NewSubmitHandler(acceptingSubmitter("never"))
	rec := httptest.NewRecorder()
	h(rec, multipartReq(t, []byte("riff"), "take.wav", "Q1"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeErrCode(t, rec); code != "INVALID_REQUEST" {
		t.Errorf("error code = %q", code)
	}
}

func TestSubmit_NeitherInputRejected(t *testing.T) {
	h := NewSubmitHandler(acceptingSubmitter("never"))
	rec := httptest.NewRecorder()
	h(rec, formReq(""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmit_BlankQuestionnaireRejected(t *testing.T) {
	h := NewSubmitHandler(acceptingSubmitter("never"))
	rec := httptest.NewRecorder()
	h(rec, multipartReq(t, nil, "", "   "))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmit_QueueUnavailable(t *testing.T) {
	sub := &mockSubmitter{fn: func(gateway.Submission) (string, error) {
		return "", gateway.ErrQueueUnavailable
	}}
	h := NewSubmitHandler(sub)
	rec := httptest.NewRecorder()
	h(rec, formReq("Q1"))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if code := decodeErrCode(t, rec); code != "QUEUE_UNAVAILABLE" {
		t.Errorf("error code = %q", code)
	}
}

func TestSubmit_InternalError(t *testing.T) {
	sub := &mockSubmitter{fn: func(gateway.Submission) (string, error) {
		return "", errors.New("disk full")
	}}
	h := NewSubmitHandler(sub)
	rec := httptest.NewRecorder()
	h(rec, formReq("Q1"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
