package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/session"
)

type testEnv struct {
	t     *testing.T
	srv   *httptest.Server
	auth  *authmw.AuthService
	store quiz.Store
	reg   *session.Registry
}

func intp(n int) *int { return &n }

func seed(t *testing.T, st quiz.Store) {
	t.Helper()
	qz := quiz.Quiz{ID: "quiz-1", LessonID: "lesson-1", Title: "Basics", PassingScore: intp(70), MaxAttempts: intp(2)}
	var qs []quiz.Question
	for i, id := range []string{"q1", "q2", "q3"} {
		qs = append(qs, quiz.Question{ID: id, Position: i + 1, Prompt: "prompt " + id, Answers: []quiz.AnswerOption{
			{ID: "a", Position: 1, Text: "right", IsCorrect: true},
			{ID: "b", Position: 2, Text: "wrong"},
		}})
	}
	if err := st.PutQuiz(context.Background(), qz, qs); err != nil {
		t.Fatal(err)
	}
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	st := quiz.NewInMemoryStore()
	seed(t, st)
	logger := log.New(io.Discard, "", 0)
	reg := session.NewRegistry(logger)
	t.Cleanup(reg.CloseAll)
	a := authmw.NewAuthService("test-secret")

	r := chi.NewRouter()
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(a))
		MountSessions(pr, &SessionAPI{
			Bank: st, Ledger: st, Registry: reg, Logger: logger,
			Options: []session.Option{
				session.WithLogger(logger),
				session.WithTicker(&session.ManualTicker{}),
				session.WithLedgerRetry(0, 0),
			},
		})
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", ListAttemptsHandler(st))
		pr.With(rbac.Require("quiz:create")).
			Post("/quizzes", ImportQuizHandler(st))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{t: t, srv: srv, auth: a, store: st, reg: reg}
}

func (e *testEnv) do(method, path, sub, role string, body any, out any) int {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, e.srv.URL+path, rd)
	if sub != "" {
		tok, err := e.auth.IssueJWT(sub, role)
		if err != nil {
			e.t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatal(err)
	}
	defer res.Body.Close()
	if out != nil {
		_ = json.NewDecoder(res.Body).Decode(out)
	}
	return res.StatusCode
}

type viewResp struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	AttemptNumber int    `json:"attempt_number"`
	QuestionIndex int    `json:"question_index"`
	CanSubmit     bool   `json:"can_submit"`
	CanRetake     bool   `json:"can_retake"`
	Question      *struct {
		ID      string `json:"id"`
		Options []struct {
			ID        string `json:"id"`
			IsCorrect *bool  `json:"is_correct"`
		} `json:"options"`
	} `json:"question"`
	Verdict *quiz.Verdict `json:"verdict"`
	Review  *struct {
		Summary string `json:"summary"`
		Message string `json:"message"`
	} `json:"review"`
	Error string `json:"error"`
}

func (e *testEnv) start(sub string) viewResp {
	e.t.Helper()
	var v viewResp
	if code := e.do(http.MethodPost, "/lessons/lesson-1/sessions", sub, "learner", nil, &v); code != http.StatusCreated {
		e.t.Fatalf("start: %d %+v", code, v)
	}
	return v
}

func (e *testEnv) answerAll(id, sub string, picks ...string) viewResp {
	e.t.Helper()
	var v viewResp
	for i, opt := range picks {
		qid := []string{"q1", "q2", "q3"}[i]
		if code := e.do(http.MethodPost, "/sessions/"+id+"/answers", sub, "learner",
			map[string]string{"question_id": qid, "option_id": opt}, &v); code != http.StatusOK {
			e.t.Fatalf("answer %s: %d %s", qid, code, v.Error)
		}
		if i < len(picks)-1 {
			e.do(http.MethodPost, "/sessions/"+id+"/next", sub, "learner", nil, &v)
		}
	}
	return v
}

func TestSessionLifecycle(t *testing.T) {
	e := newEnv(t)
	v := e.start("u1")
	if v.State != string(session.StatePresenting) || v.AttemptNumber != 1 || v.Question == nil {
		t.Fatalf("start view = %+v", v)
	}
	for _, o := range v.Question.Options {
		if o.IsCorrect != nil {
			t.Fatal("answer key exposed to learner")
		}
	}
	id := v.ID

	var early viewResp
	if code := e.do(http.MethodPost, "/sessions/"+id+"/submit", "u1", "learner", nil, &early); code != http.StatusConflict {
		t.Fatalf("early submit: %d", code)
	}

	v = e.answerAll(id, "u1", "a", "b", "b")
	if !v.CanSubmit || v.QuestionIndex != 2 {
		t.Fatalf("on last = %+v", v)
	}
	if code := e.do(http.MethodPost, "/sessions/"+id+"/submit", "u1", "learner", nil, &v); code != http.StatusOK {
		t.Fatalf("submit: %d", code)
	}
	if v.State != string(session.StateReviewing) || v.Verdict == nil || v.Verdict.Percent != 33 || v.Verdict.Passed {
		t.Fatalf("review view = %+v", v)
	}
	if !v.CanRetake || v.Review == nil || v.Review.Summary != "1 of 3 correct" {
		t.Fatalf("review = %+v", v.Review)
	}

	// second submit is idempotent
	var again viewResp
	if code := e.do(http.MethodPost, "/sessions/"+id+"/submit", "u1", "learner", nil, &again); code != http.StatusOK || again.Verdict.Percent != 33 {
		t.Fatalf("second submit: %d %+v", code, again)
	}

	if code := e.do(http.MethodPost, "/sessions/"+id+"/retake", "u1", "learner", nil, &v); code != http.StatusOK {
		t.Fatalf("retake: %d", code)
	}
	if v.AttemptNumber != 2 || v.State != string(session.StatePresenting) || v.QuestionIndex != 0 {
		t.Fatalf("retake view = %+v", v)
	}
	v = e.answerAll(id, "u1", "a", "a", "b")
	e.do(http.MethodPost, "/sessions/"+id+"/submit", "u1", "learner", nil, &v)
	if v.State != string(session.StateExhausted) || v.CanRetake || v.Verdict == nil || v.Verdict.Percent != 67 {
		t.Fatalf("final view = %+v", v)
	}
	if code := e.do(http.MethodPost, "/sessions/"+id+"/retake", "u1", "learner", nil, nil); code != http.StatusConflict {
		t.Fatalf("retake when exhausted: %d", code)
	}

	var list []quiz.AttemptRecord
	if code := e.do(http.MethodGet, "/attempts?quiz_id=quiz-1", "u1", "learner", nil, &list); code != http.StatusOK || len(list) != 2 {
		t.Fatalf("attempts: %d %d", code, len(list))
	}

	// a new session after the cap opens exhausted
	if code := e.do(http.MethodDelete, "/sessions/"+id, "u1", "learner", nil, nil); code != http.StatusNoContent {
		t.Fatalf("close: %d", code)
	}
	again = e.start("u1")
	if again.State != string(session.StateExhausted) {
		t.Fatalf("reopen state = %s", again.State)
	}
}

func TestStartReusesLiveSession(t *testing.T) {
	e := newEnv(t)
	first := e.start("u1")

	var second viewResp
	if code := e.do(http.MethodPost, "/lessons/lesson-1/sessions", "u1", "learner", nil, &second); code != http.StatusOK {
		t.Fatalf("second start: %d", code)
	}
	if second.ID != first.ID || second.AttemptNumber != 1 || e.reg.Len() != 1 {
		t.Fatalf("second start = %+v, registry %d", second, e.reg.Len())
	}
	other := e.start("u2")
	if other.ID == first.ID {
		t.Fatal("learners share a session")
	}

	v := e.answerAll(first.ID, "u1", "a", "a", "a")
	if code := e.do(http.MethodPost, "/sessions/"+first.ID+"/submit", "u1", "learner", nil, &v); code != http.StatusOK || v.Verdict == nil || !v.Verdict.Passed {
		t.Fatalf("submit: %d %+v", code, v)
	}

	// starting again shows the reviewed attempt, not a fresh attempt 1
	var third viewResp
	e.do(http.MethodPost, "/lessons/lesson-1/sessions", "u1", "learner", nil, &third)
	if third.ID != first.ID || third.State != string(session.StateReviewing) || third.Question != nil {
		t.Fatalf("third start = %+v", third)
	}

	if code := e.do(http.MethodDelete, "/sessions/"+first.ID, "u1", "learner", nil, nil); code != http.StatusNoContent {
		t.Fatalf("close: %d", code)
	}
	next := e.start("u1")
	if next.ID == first.ID || next.AttemptNumber != 2 {
		t.Fatalf("after close = %+v", next)
	}
	n, err := e.store.MaxAttemptNumber(context.Background(), "quiz-1", "u1")
	if err != nil || n != 1 {
		t.Fatalf("ledger max = %d, %v", n, err)
	}
}

func TestSessionOwnership(t *testing.T) {
	e := newEnv(t)
	v := e.start("u1")

	if code := e.do(http.MethodPost, "/sessions/"+v.ID+"/next", "u2", "learner", nil, nil); code != http.StatusForbidden {
		t.Fatalf("other learner next: %d", code)
	}
	if code := e.do(http.MethodGet, "/sessions/"+v.ID, "u2", "learner", nil, nil); code != http.StatusForbidden {
		t.Fatalf("other learner get: %d", code)
	}
	if code := e.do(http.MethodGet, "/sessions/"+v.ID, "t1", "instructor", nil, nil); code != http.StatusOK {
		t.Fatalf("instructor observe: %d", code)
	}
	if code := e.do(http.MethodGet, "/sessions/"+v.ID, "", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", code)
	}
	if code := e.do(http.MethodDelete, "/sessions/"+v.ID, "u1", "learner", nil, nil); code != http.StatusNoContent {
		t.Fatalf("close: %d", code)
	}
	if code := e.do(http.MethodGet, "/sessions/"+v.ID, "u1", "learner", nil, nil); code != http.StatusNotFound {
		t.Fatalf("closed session get: %d", code)
	}
	if e.reg.Len() != 0 {
		t.Fatalf("registry len = %d", e.reg.Len())
	}
}

func TestStartAbsentLesson(t *testing.T) {
	e := newEnv(t)
	var v viewResp
	if code := e.do(http.MethodPost, "/lessons/nope/sessions", "u1", "learner", nil, &v); code != http.StatusNotFound {
		t.Fatalf("absent: %d", code)
	}
	if v.State != string(session.StateAbsent) || e.reg.Len() != 0 {
		t.Fatalf("absent view = %+v, registry %d", v, e.reg.Len())
	}
}

func TestAnswerErrors(t *testing.T) {
	e := newEnv(t)
	v := e.start("u1")
	cases := []struct {
		body any
		want int
	}{
		{map[string]string{"question_id": "zz", "option_id": "a"}, http.StatusBadRequest},
		{map[string]string{"question_id": "q1", "option_id": "zz"}, http.StatusBadRequest},
		{"not an object", http.StatusBadRequest},
	}
	for _, c := range cases {
		if code := e.do(http.MethodPost, "/sessions/"+v.ID+"/answers", "u1", "learner", c.body, nil); code != c.want {
			t.Errorf("%v: %d, want %d", c.body, code, c.want)
		}
	}
}

func TestListAttemptsScoping(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, learner := range []string{"u1", "u2"} {
		if err := e.store.AppendAttempt(ctx, quiz.AttemptRecord{ID: "r-" + learner, QuizID: "quiz-1", LearnerID: learner, AttemptNumber: 1}); err != nil {
			t.Fatal(err)
		}
	}
	var list []quiz.AttemptRecord
	e.do(http.MethodGet, "/attempts?learner_id=u2", "u1", "learner", nil, &list)
	if len(list) != 1 || list[0].LearnerID != "u1" {
		t.Fatalf("learner sees %+v", list)
	}
	list = nil
	e.do(http.MethodGet, "/attempts?learner_id=u2", "t1", "instructor", nil, &list)
	if len(list) != 1 || list[0].LearnerID != "u2" {
		t.Fatalf("instructor filter = %+v", list)
	}
	list = nil
	e.do(http.MethodGet, "/attempts", "t1", "instructor", nil, &list)
	if len(list) != 2 {
		t.Fatalf("instructor all = %d", len(list))
	}
}

func TestImportQuiz(t *testing.T) {
	e := newEnv(t)
	good := map[string]any{
		"id": "quiz-2", "lesson_id": "lesson-2", "title": "More",
		"questions": []map[string]any{{
			"id": "x1", "position": 1, "prompt": "?",
			"answers": []map[string]any{{"id": "y", "text": "yes", "is_correct": true}, {"id": "n", "text": "no"}},
		}},
	}
	if code := e.do(http.MethodPost, "/quizzes", "u1", "learner", good, nil); code != http.StatusForbidden {
		t.Fatalf("learner import: %d", code)
	}
	if code := e.do(http.MethodPost, "/quizzes", "t1", "instructor", good, nil); code != http.StatusCreated {
		t.Fatalf("instructor import: %d", code)
	}
	if _, err := e.store.FetchQuiz(context.Background(), "lesson-2"); err != nil {
		t.Fatalf("imported quiz missing: %v", err)
	}

	bad := map[string]any{"id": "quiz-3", "lesson_id": "lesson-3", "questions": []any{}}
	var body struct {
		Error string `json:"error"`
	}
	if code := e.do(http.MethodPost, "/quizzes", "t1", "instructor", bad, &body); code != http.StatusUnprocessableEntity || body.Error == "" {
		t.Fatalf("invalid import: %d %+v", code, body)
	}
	if code := e.do(http.MethodPost, "/quizzes", "t1", "instructor", map[string]any{"title": "x"}, nil); code != http.StatusBadRequest {
		t.Fatalf("missing ids: %d", code)
	}
}
