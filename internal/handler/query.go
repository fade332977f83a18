package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/climatequery/engine/internal/application/service/pipeline"
	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/utils"
)

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// QueryHandler adapts process_query to the HTTP surface. The surface
// itself - routing, request parsing, SSE framing - is a thin transport
// concern; this handler is the adapter the orchestrator is mounted behind.
type QueryHandler struct {
	orchestrator *pipeline.PipelineOrchestrator
}

// NewQueryHandler builds a QueryHandler bound to one orchestrator.
func NewQueryHandler(orchestrator *pipeline.PipelineOrchestrator) *QueryHandler {
	return &QueryHandler{orchestrator: orchestrator}
}

// ProcessQueryRequest is the JSON body accepted by both endpoints below.
type ProcessQueryRequest struct {
	Query               string               `json:"query" binding:"required,max=2000"`
	Language            *string              `json:"language,omitempty"`
	ConversationHistory []conversationTurnDTO `json:"conversation_history,omitempty"`
	SkipCache           bool                  `json:"skip_cache,omitempty"`
}

type conversationTurnDTO struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r *ProcessQueryRequest) toUserQuery() types.UserQuery {
	history := make([]types.ConversationTurn, 0, len(r.ConversationHistory))
	for _, t := range r.ConversationHistory {
		history = append(history, types.ConversationTurn{Role: types.Role(t.Role), Content: t.Content})
	}
	return types.UserQuery{
		Text:             r.Query,
		DeclaredLanguage: r.Language,
		History:          history,
		SkipCache:        r.SkipCache,
	}
}

// ProcessQueryResponse is the JSON shape of the returned Record.
type ProcessQueryResponse struct {
	Success           bool             `json:"success"`
	Response          string           `json:"response"`
	Citations         []types.Citation `json:"citations"`
	FaithfulnessScore float64          `json:"faithfulness_score"`
	ProcessingTimeMs  int64            `json:"processing_time_ms"`
	LanguageUsed      string           `json:"language_used"`
	ModelUsed         string           `json:"model_used"`
	RetrievalSource   string           `json:"retrieval_source"`
	RequestID         string           `json:"request_id"`
}

func toResponse(result types.QueryResult) ProcessQueryResponse {
	resp := ProcessQueryResponse{Success: result.Success, RequestID: result.RequestID}
	if result.Answer == nil {
		return resp
	}
	a := result.Answer
	resp.Response = utils.SanitizeForDisplay(a.Text)
	resp.Citations = a.Citations
	resp.FaithfulnessScore = a.FaithfulnessScore
	resp.ProcessingTimeMs = a.ProcessingTimeMs
	resp.LanguageUsed = a.LanguageCode
	resp.RetrievalSource = string(a.RetrievalSource)
	if a.RetrievalSource == types.RetrievalCanned || a.RetrievalSource == types.RetrievalNone {
		resp.ModelUsed = "canned"
	} else {
		resp.ModelUsed = string(a.ModelFamilyUsed)
	}
	return resp
}

// ProcessQuery handles a single non-streaming process_query call.
func (h *QueryHandler) ProcessQuery(c *gin.Context) {
	var req ProcessQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	cleaned, ok := utils.ValidateInput(req.Query)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "query contains invalid or unsafe content"})
		return
	}
	req.Query = cleaned

	ctx := logger.CloneContext(c.Request.Context())
	result := h.orchestrator.ProcessQuery(ctx, req.toUserQuery(), nil)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, toResponse(result))
}

// ProcessQueryStream handles process_query with progress events relayed
// over Server-Sent Events; the final record is emitted as the terminal
// "result" event. The SSE framing itself is a thin transport concern;
// this handler only owns translating the orchestrator's progress_sink
// calls into the wire format.
func (h *QueryHandler) ProcessQueryStream(c *gin.Context) {
	var req ProcessQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	cleaned, ok := utils.ValidateInput(req.Query)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "query contains invalid or unsafe content"})
		return
	}
	req.Query = cleaned

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := logger.CloneContext(c.Request.Context())
	flusher, canFlush := c.Writer.(http.Flusher)

	sink := func(event types.ProgressEvent) {
		fmt.Fprintf(c.Writer, "event: progress\ndata: {\"stage\":\"%s\"}\n\n", event)
		if canFlush {
			flusher.Flush()
		}
	}

	result := h.orchestrator.ProcessQuery(ctx, req.toUserQuery(), sink)
	resp := toResponse(result)
	fmt.Fprintf(c.Writer, "event: result\ndata: %s\n\n", mustJSON(resp))
	if canFlush {
		flusher.Flush()
	}
}
