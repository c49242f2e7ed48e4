package aws

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSService is the part of the SNS client the notifier calls.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func NewSNSClient(cfg sdkaws.Config) SNSService {
	return sns.NewFromConfig(cfg)
}

// BuildPublish returns a topic message. SNS caps subjects at 100 characters.
func BuildPublish(topicARN, subject, message string, attrs map[string]string) *sns.PublishInput {
	if len(subject) > 100 {
		subject = subject[:100]
	}
	in := &sns.PublishInput{
		TopicArn: sdkaws.String(topicARN),
		Subject:  sdkaws.String(subject),
		Message:  sdkaws.String(message),
	}
	if len(attrs) > 0 {
		in.MessageAttributes = make(map[string]types.MessageAttributeValue, len(attrs))
		for k, v := range attrs {
			in.MessageAttributes[k] = types.MessageAttributeValue{
				DataType:    sdkaws.String("String"),
				StringValue: sdkaws.String(v),
			}
		}
	}
	return in
}
