package spawner

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// ParameterStoreInterface defines the SSM operations used to load settings
type ParameterStoreInterface interface {
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// ParameterStore reads spawner settings kept in AWS Systems Manager
type ParameterStore struct {
	client ParameterStoreInterface
}

// NewParameterStore creates a ParameterStore from the default AWS config
func NewParameterStore(ctx context.Context) (*ParameterStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &ParameterStore{client: ssm.NewFromConfig(cfg)}, nil
}

// NewParameterStoreWithMock creates a ParameterStore with a mock client for testing
func NewParameterStoreWithMock(mockClient ParameterStoreInterface) *ParameterStore {
	return &ParameterStore{client: mockClient}
}

// LoadOverlay reads every parameter directly under prefix and returns them
// keyed as environment variables: "/hub/spawner-project" becomes
// SPAWNER_PROJECT.
func (p *ParameterStore) LoadOverlay(ctx context.Context, prefix string) (map[string]string, error) {
	logger := logf.FromContext(ctx).WithName("parameter-store")

	overlay := make(map[string]string)
	paginator := ssm.NewGetParametersByPathPaginator(p.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(prefix),
		WithDecryption: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read parameters under %s: %w", prefix, err)
		}
		for _, parameter := range page.Parameters {
			name := aws.ToString(parameter.Name)
			if name == "" {
				continue
			}
			overlay[envKey(name)] = aws.ToString(parameter.Value)
		}
	}

	logger.Info("Loaded settings from parameter store", "path", prefix, "parameters", len(overlay))
	return overlay, nil
}

func envKey(parameterName string) string {
	return strings.ToUpper(strings.ReplaceAll(path.Base(parameterName), "-", "_"))
}
