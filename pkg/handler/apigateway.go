package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/google/uuid"
)

// AwsApiGateway serves API Gateway proxy events through an http.Handler.
// Events are converted by the adapter; the response is collected here so a
// bad event can be answered with the JSON error envelope.
type AwsApiGateway struct {
	adapter *httpadapter.HandlerAdapter
	handler http.Handler
}

// NewAwsApiGateway creates a new API Gateway handler
func NewAwsApiGateway(h http.Handler) *AwsApiGateway {
	return &AwsApiGateway{adapter: httpadapter.New(h), handler: h}
}

// Handler is the Lambda function interface for API Gateway
func (h *AwsApiGateway) Handler(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	requestID := event.RequestContext.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	ctx = context.WithValue(ctx, RequestIDContextKey, requestID)

	req, err := h.adapter.EventToRequestWithContext(ctx, event)
	if err != nil {
		slog.Error("Failed to convert API Gateway event",
			slog.String("requestId", requestID),
			slog.String("error", err.Error()))
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusBadRequest,
			Headers:    ResponseHeaders,
			Body:       fmt.Sprintf(`{"success":false,"statusCode":400,"requestId":%q,"errorCode":"invalid_request"}`, requestID),
		}, nil
	}

	w := core.NewProxyResponseWriter()
	h.handler.ServeHTTP(w, req)

	resp, err := w.GetProxyResponse()
	if err != nil {
		slog.Error("Failed to build API Gateway response",
			slog.String("requestId", requestID),
			slog.String("error", err.Error()))
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    ResponseHeaders,
			Body:       fmt.Sprintf(`{"success":false,"statusCode":500,"requestId":%q,"errorCode":"internal_error"}`, requestID),
		}, nil
	}
	return resp, nil
}
