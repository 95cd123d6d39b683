package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cryptosentry/logger"
)

// Publisher periodically pushes registry snapshots to CloudWatch.
type Publisher struct {
	client    *cloudwatch.Client
	registry  *Registry
	namespace string
	interval  time.Duration
	log       *logger.Entry
}

func NewPublisher(ctx context.Context, registry *Registry, region, namespace string, interval time.Duration, log *logger.Log) (*Publisher, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if namespace == "" {
		namespace = "CryptoSentry"
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Publisher{
		client:    cloudwatch.NewFromConfig(cfg),
		registry:  registry,
		namespace: namespace,
		interval:  interval,
		log:       log.WithComponent("cloudwatch"),
	}, nil
}

// Start runs the publish loop until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.publish(ctx)
			}
		}
	}()
}

func (p *Publisher) publish(ctx context.Context) {
	snapshot := p.registry.Snapshot()
	data := make([]cwtypes.MetricDatum, 0, len(snapshot))
	now := time.Now()
	for name, value := range snapshot {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Timestamp:  aws.Time(now),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(value)),
		})
	}
	if _, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	}); err != nil {
		p.log.WithError(err).Warn("failed to publish metrics")
	}
}
