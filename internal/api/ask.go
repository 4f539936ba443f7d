package api

import (
	"net/http"
	"strings"

	"github.com/askframe/askframe/internal/auth"
	"github.com/askframe/askframe/internal/config"
	"github.com/askframe/askframe/internal/pipeline"
	"github.com/askframe/askframe/internal/render"
)

type askResponse struct {
	Question       string           `json:"question"`
	Code           string           `json:"code"`
	RemovedImports int              `json:"removed_imports"`
	Outputs        []render.Payload `json:"outputs"`
	Steps          uint64           `json:"steps"`
	DurationMs     int64            `json:"duration_ms"`
}

func handleAsk(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Analyst == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ANALYST_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}
	tbl, req, reqErr := readDataset(cfg, deps, w, r, auth.RoleAnalyst)
	if reqErr != nil {
		reqErr.write(w, r)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	outcome := deps.Analyst.Run(r.Context(), pipeline.Request{Table: tbl, Question: req.Question})
	if failure := outcome.Failure; failure != nil {
		status, code, retryable := failureStatus(failure.Kind)
		writeError(r.Context(), w, status, code, failure.Err.Error(), retryable, map[string]any{
			"stage": failure.Stage,
			"kind":  failure.Kind,
			"trace": failure.Trace,
			"code":  outcome.Code,
		})
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		Question:       req.Question,
		Code:           outcome.Code,
		RemovedImports: outcome.Candidate.RemovedImports,
		Outputs:        render.Payloads(outcome.Report),
		Steps:          outcome.Steps,
		DurationMs:     outcome.Duration.Milliseconds(),
	})
}

func failureStatus(kind pipeline.FailureKind) (int, string, bool) {
	switch kind {
	case pipeline.KindGeneration:
		return http.StatusBadGateway, "GENERATION_FAILED", true
	case pipeline.KindExtraction:
		return http.StatusUnprocessableEntity, "CODE_NOT_FOUND", true
	case pipeline.KindSandbox:
		return http.StatusUnprocessableEntity, "EXECUTION_FAILED", true
	default:
		return http.StatusInternalServerError, "RENDER_FAILED", false
	}
}
