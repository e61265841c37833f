package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/boogy/health-journal/pkg/handler"
)

var bootstrap *handler.Bootstrap

func init() {
	var err error
	bootstrap, err = handler.NewBootstrap(context.Background())
	if err != nil {
		panic(err)
	}
}

func main() {
	// Ensure cleanup happens when the function exits
	defer bootstrap.Cleanup()

	apiHandler := handler.NewAwsApiGatewayFromBootstrap(bootstrap)

	lambda.Start(func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		// Ship this invocation's logs before the sandbox freezes
		defer bootstrap.Flush(ctx)
		return apiHandler.Handler(ctx, event)
	})
}
