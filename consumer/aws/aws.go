// Package aws provides an SNS-over-SQS consumer for routeflow. Each topic
// gets an SQS queue subscribed to the SNS topic; LocalStack endpoints are
// supported through the AWSEndpoint config value.
package aws

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsns "github.com/aws/aws-sdk-go-v2/service/sns"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	smithyendpoints "github.com/aws/smithy-go/endpoints"

	"github.com/queueworks/routeflow/consumer"
	"github.com/queueworks/routeflow/internal/worker"
	"github.com/queueworks/routeflow/internal/worker/logging"
)

// SystemName is the queue-system name this backend registers under.
const SystemName = "aws"

const (
	localstackAccountID = "000000000000"
	awsAccountIDLength  = 12

	subscriberName = "routeflow"
)

var (
	DefaultConfigLoader  = awsconfig.LoadDefaultConfig
	TopicResolverFactory = sns.NewGenerateArnTopicResolver
	SubscriberFactory    = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return sns.NewSubscriber(cfg, sqsCfg, logger)
	}
)

func init() {
	consumer.Register(SystemName, Build)
}

// Build creates a consumer reading the configured topic via SNS and SQS.
func Build(ctx context.Context, cfg consumer.Config, logger logging.ServiceLogger) (worker.Consumer, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Created AWS config", logging.LogFields{
		"region":          awsCfg.Region,
		"custom_endpoint": hasCustomEndpoint(awsCfg),
	})

	subscriber, err := newSubscriber(cfg, logger, awsCfg)
	if err != nil {
		return nil, err
	}

	return consumer.NewQueue(cfg.GetQueue(), subscriber, logger, consumer.WithIdleInterval(cfg.GetIdleInterval()))
}

func loadAWSConfig(ctx context.Context, cfg consumer.Config, logger logging.ServiceLogger) (*aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.GetAWSRegion() != "" {
		logger.Info("Setting AWS region from config", logging.LogFields{"region": cfg.GetAWSRegion()})
		opts = append(opts, awsconfig.WithRegion(cfg.GetAWSRegion()))
	}
	if cfg.GetAWSAccessKeyID() != "" && cfg.GetAWSSecretAccessKey() != "" {
		logger.Info("Using static AWS credentials from config", nil)
		opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentialsProvider(cfg.GetAWSAccessKeyID(), cfg.GetAWSSecretAccessKey())))
	}

	loaded, err := DefaultConfigLoader(ctx, opts...)
	if err != nil {
		logger.Error("Failed to load AWS default config", err, logging.LogFields{
			"requested_region": cfg.GetAWSRegion(),
		})
		return nil, err
	}
	// Ensure region is set even if the loader ignores options (e.g. in tests)
	if cfg.GetAWSRegion() != "" {
		loaded.Region = cfg.GetAWSRegion()
	}
	if cfg.GetAWSEndpoint() != "" {
		loaded.BaseEndpoint = aws.String(cfg.GetAWSEndpoint())
	}

	return &loaded, nil
}

func newSubscriber(cfg consumer.Config, logger logging.ServiceLogger, awsCfg *aws.Config) (message.Subscriber, error) {
	accountID, region := resolveAccountAndRegion(cfg, logger, awsCfg.Region)

	topicResolver, err := TopicResolverFactory(accountID, region)
	if err != nil {
		logger.Error("Failed to create SNS topic resolver", err, logging.LogFields{
			"accountID": accountID,
			"region":    region,
		})
		return nil, err
	}

	var snsOpts []func(*amazonsns.Options)
	var sqsOpts []func(*amazonsqs.Options)
	snsOpts, sqsOpts, err = addEndpointResolver(awsCfg, snsOpts, sqsOpts)
	if err != nil {
		return nil, err
	}

	subscriberConfig := sns.SubscriberConfig{
		AWSConfig: aws.Config{
			Credentials: aws.AnonymousCredentials{},
		},
		OptFns:               snsOpts,
		TopicResolver:        topicResolver,
		GenerateSqsQueueName: makeSqsQueueNameGenerator(subscriberName),
	}

	return SubscriberFactory(
		subscriberConfig,
		sqs.SubscriberConfig{
			AWSConfig: *awsCfg,
			OptFns:    sqsOpts,
		},
		logging.NewWatermillAdapter(logger),
	)
}

func makeSqsQueueNameGenerator(name string) func(context.Context, sns.TopicArn) (string, error) {
	return func(ctx context.Context, snsTopic sns.TopicArn) (string, error) {
		topic, err := sns.ExtractTopicNameFromTopicArn(snsTopic)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%v-%v", topic, name), nil
	}
}

func addEndpointResolver(awsCfg *aws.Config, snsOpts []func(*amazonsns.Options), sqsOpts []func(*amazonsqs.Options)) ([]func(*amazonsns.Options), []func(*amazonsqs.Options), error) {
	if !hasCustomEndpoint(awsCfg) {
		return snsOpts, sqsOpts, nil
	}

	parsedURL, err := url.Parse(*awsCfg.BaseEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse BaseEndpoint: %w", err)
	}
	snsOpts = []func(*amazonsns.Options){
		amazonsns.WithEndpointResolverV2(sns.OverrideEndpointResolver{
			Endpoint: smithyendpoints.Endpoint{
				URI: *parsedURL,
			},
		}),
	}
	sqsOpts = []func(*amazonsqs.Options){
		amazonsqs.WithEndpointResolverV2(sqs.OverrideEndpointResolver{
			Endpoint: smithyendpoints.Endpoint{
				URI: *parsedURL,
			},
		}),
	}
	return snsOpts, sqsOpts, nil
}

func resolveAccountAndRegion(cfg consumer.Config, logger logging.ServiceLogger, fallbackRegion string) (string, string) {
	accountID := strings.Trim(cfg.GetAWSAccountID(), "\"' ")
	region := cfg.GetAWSRegion()
	if region == "" {
		region = fallbackRegion
	}

	usesLocalstack := cfg.GetAWSEndpoint() != ""

	if accountID == "" && usesLocalstack {
		accountID = localstackAccountID
		logger.Info("AWS account ID empty; using LocalStack default", logging.LogFields{"accountID": accountID})
		return accountID, region
	}

	if accountID != "" && len(accountID) != awsAccountIDLength && usesLocalstack {
		logger.Info("Invalid AWS account ID; falling back to LocalStack default", logging.LogFields{"accountID": accountID})
		accountID = localstackAccountID
	}

	return accountID, region
}

func hasCustomEndpoint(awsCfg *aws.Config) bool {
	return awsCfg != nil && awsCfg.BaseEndpoint != nil && *awsCfg.BaseEndpoint != ""
}

func staticCredentialsProvider(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}, nil
	})
}
