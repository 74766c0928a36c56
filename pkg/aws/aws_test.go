package aws

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sns.PublishOutput{}, f.err
}

func TestSNSClient_Publish(t *testing.T) {
	api := &fakeSNS{}
	c := &SNSClient{client: api}

	require.NoError(t, c.Publish(context.Background(), "arn:aws:sns:eu-west-2:000000000000:billing", []byte(`{"a":1}`)))
	require.Len(t, api.inputs, 1)
	assert.Equal(t, `{"a":1}`, *api.inputs[0].Message)

	assert.Error(t, c.Publish(context.Background(), "", []byte("x")))

	api.err = fmt.Errorf("throttled")
	assert.ErrorContains(t, c.Publish(context.Background(), "arn", []byte("x")), "throttled")
}

type fakeSecrets struct {
	calls  int
	values map[string]string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.values[*in.SecretId]
	if !ok {
		return nil, fmt.Errorf("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: sdkaws.String(v)}, nil
}

func TestSecretsClient_CachesAndParses(t *testing.T) {
	api := &fakeSecrets{values: map[string]string{
		"billing/STRIPE": `{"STRIPE_API_KEY":"sk_test_1"}`,
		"billing/bad":    `not-json`,
	}}
	c := newSecretsClient(api)

	m, err := c.GetSecretMap(context.Background(), "billing/STRIPE")
	require.NoError(t, err)
	assert.Equal(t, "sk_test_1", m["STRIPE_API_KEY"])

	_, err = c.GetSecret(context.Background(), "billing/STRIPE")
	require.NoError(t, err)
	assert.Equal(t, 1, api.calls)

	_, err = c.GetSecretMap(context.Background(), "billing/bad")
	assert.Error(t, err)

	_, err = c.GetSecret(context.Background(), "missing")
	assert.Error(t, err)
}

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestMetricsClient(t *testing.T) {
	api := &fakeCloudWatch{}

	disabled := &MetricsClient{client: api, namespace: "Billing"}
	require.NoError(t, disabled.RecordCount(context.Background(), MetricPaymentSucceeded, nil))
	assert.Empty(t, api.inputs)

	var nilClient *MetricsClient
	assert.False(t, nilClient.IsEnabled())
	assert.NoError(t, nilClient.RecordCount(context.Background(), MetricPaymentFailed, nil))

	enabled := &MetricsClient{client: api, namespace: "Billing", enabled: true}
	require.NoError(t, enabled.RecordCount(context.Background(), MetricPaymentSucceeded, map[string]string{"Currency": "INR"}))
	require.Len(t, api.inputs, 1)
	assert.Equal(t, "Billing", *api.inputs[0].Namespace)
	assert.Equal(t, MetricPaymentSucceeded, *api.inputs[0].MetricData[0].MetricName)
	assert.Len(t, api.inputs[0].MetricData[0].Dimensions, 1)
}

type fakeLogs struct {
	messages []string
	token    int
	err      error
}

func (f *fakeLogs) CreateLogGroup(context.Context, *cloudwatchlogs.CreateLogGroupInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	return &cloudwatchlogs.CreateLogGroupOutput{}, nil
}

func (f *fakeLogs) PutRetentionPolicy(context.Context, *cloudwatchlogs.PutRetentionPolicyInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error) {
	return &cloudwatchlogs.PutRetentionPolicyOutput{}, nil
}

func (f *fakeLogs) CreateLogStream(context.Context, *cloudwatchlogs.CreateLogStreamInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	return &cloudwatchlogs.CreateLogStreamOutput{}, nil
}

func (f *fakeLogs) PutLogEvents(_ context.Context, in *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, e := range in.LogEvents {
		f.messages = append(f.messages, *e.Message)
	}
	f.token++
	return &cloudwatchlogs.PutLogEventsOutput{NextSequenceToken: sdkaws.String(fmt.Sprint(f.token))}, nil
}

func TestCloudWatchLogsClient_Write(t *testing.T) {
	api := &fakeLogs{}
	c := &CloudWatchLogsClient{client: api, logGroupName: "/billing/test", logStreamName: "s"}
	require.NoError(t, c.ensureLogGroup(context.Background()))
	require.NoError(t, c.createLogStream(context.Background()))

	line := []byte(`{"msg":"hello"}`)
	n, err := c.Write(line)
	require.NoError(t, err)
	assert.Equal(t, len(line), n)
	assert.Equal(t, []string{`{"msg":"hello"}`}, api.messages)
	assert.Equal(t, "1", *c.sequenceToken)

	api.err = fmt.Errorf("down")
	n, err = c.Write(bytes.Repeat([]byte("x"), 3))
	assert.NoError(t, err, "shipping failures never fail the write")
	assert.Equal(t, 3, n)
}
