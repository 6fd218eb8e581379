package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"
)

// 权限对象类型
const (
	ObjectTask     = "task"
	ObjectTemplate = "template"
	ObjectWorkflow = "workflow"
)

// 权限关系
const (
	RelationCreator  = "creator"
	RelationApprover = "approver"
	RelationOwner    = "owner"
)

// PermissionChecker 关系型权限检查
type PermissionChecker interface {
	CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error)
	SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error
	DeleteRelation(ctx context.Context, userID, relation, objectType, objectID string) error
}

// OpenFGAClient OpenFGA 客户端
type OpenFGAClient struct {
	client  *client.OpenFgaClient
	storeID string
	modelID string
}

// NewOpenFGAClient 创建 OpenFGA 客户端
func NewOpenFGAClient(apiURL string, storeID string, modelID string) (*OpenFGAClient, error) {
	configuration := client.ClientConfiguration{
		ApiUrl:               apiURL,
		StoreId:              storeID,
		AuthorizationModelId: modelID,
		Credentials: &credentials.Credentials{
			Method: credentials.CredentialsMethodNone,
		},
	}

	fgaClient, err := client.NewSdkClient(&configuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenFGA client: %w", err)
	}

	return &OpenFGAClient{
		client:  fgaClient,
		storeID: storeID,
		modelID: modelID,
	}, nil
}

func tupleUser(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

func tupleObject(objectType, objectID string) string {
	return fmt.Sprintf("%s:%s", objectType, objectID)
}

// CheckPermission 检查权限
func (c *OpenFGAClient) CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	body := client.ClientCheckRequest{
		User:     tupleUser(userID),
		Relation: relation,
		Object:   tupleObject(objectType, objectID),
	}

	response, err := c.client.Check(ctx).Body(body).Execute()
	if err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}

	return response.GetAllowed(), nil
}

// SetRelation 设置权限关系
func (c *OpenFGAClient) SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	body := client.ClientWriteRequest{
		Writes: []client.ClientTupleKey{
			{
				User:     tupleUser(userID),
				Relation: relation,
				Object:   tupleObject(objectType, objectID),
			},
		},
	}

	if _, err := c.client.Write(ctx).Body(body).Execute(); err != nil {
		return fmt.Errorf("failed to set relation: %w", err)
	}
	return nil
}

// DeleteRelation 删除权限关系
func (c *OpenFGAClient) DeleteRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	body := client.ClientWriteRequest{
		Deletes: []client.ClientTupleKeyWithoutCondition{
			{
				User:     tupleUser(userID),
				Relation: relation,
				Object:   tupleObject(objectType, objectID),
			},
		},
	}

	if _, err := c.client.Write(ctx).Body(body).Execute(); err != nil {
		return fmt.Errorf("failed to delete relation: %w", err)
	}
	return nil
}

// NewOpenFGAClientWithRetry 带重试的 OpenFGA 客户端创建,maxRetries 为总尝试次数
func NewOpenFGAClientWithRetry(apiURL string, storeID string, modelID string, maxRetries int, retryInterval time.Duration) (*OpenFGAClient, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInterval
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0

	connect := func() (*OpenFGAClient, error) {
		fgaClient, err := NewOpenFGAClient(apiURL, storeID, modelID)
		if err != nil {
			// 配置错误重试无意义
			return nil, backoff.Permanent(err)
		}
		if !fgaClient.CheckHealth(context.Background()) {
			return nil, fmt.Errorf("openfga at %s is not reachable", apiURL)
		}
		return fgaClient, nil
	}

	fgaClient, err := backoff.RetryWithData(connect, backoff.WithMaxRetries(policy, uint64(maxRetries-1)))
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenFGA client after %d attempts: %w", maxRetries, err)
	}
	return fgaClient, nil
}

// CheckHealth 检查 OpenFGA 连接健康状态
func (c *OpenFGAClient) CheckHealth(ctx context.Context) bool {
	if c == nil || c.client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.Read(ctx).Execute()
	return err == nil
}
