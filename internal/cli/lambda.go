package cli

import (
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/trailhawk/internal/handler"
	"github.com/telhawk-systems/trailhawk/internal/parser"
)

const (
	sourceCloudWatch = "cloudwatch"
	sourceS3         = "s3"
)

// startLambda is replaced in tests.
var startLambda = func(h any) { lambda.Start(h) }

func newLambdaCmd(opts *rootOptions) *cobra.Command {
	var src string

	cmd := &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda function",
		Long: `Start the AWS Lambda runtime. With --source cloudwatch the function is
subscribed to a CloudWatch Logs group and receives base64 gzip batches.
With --source s3 it is notified of CloudTrail log files written to a bucket.`,
		Example: `  DYNAMODB_TABLE_NAME=audit trailhawk lambda --source cloudwatch
  trailhawk lambda --source s3 --config /var/task/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a := opts.newApp()

			switch src {
			case sourceCloudWatch:
				p, err := a.Pipeline(ctx, "base64-gzip", parser.FormatLogEvents)
				if err != nil {
					return err
				}
				startLambda(handler.NewCloudWatch(p, opts.logger).Handle)
			case sourceS3:
				p, err := a.Pipeline(ctx, "auto", parser.FormatRecords)
				if err != nil {
					return err
				}
				fetcher, err := a.S3Fetcher(ctx)
				if err != nil {
					return err
				}
				startLambda(handler.NewS3(p, fetcher, opts.logger).Handle)
			default:
				return fmt.Errorf("unknown --source %q (want cloudwatch or s3)", src)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&src, "source", sourceCloudWatch, "event source: cloudwatch or s3")
	return cmd
}
