package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/docker/docker/api/types/image"
	dockerregistry "github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

// ecrAPI is the subset of the ECR client used for authentication and lookup
type ecrAPI interface {
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
	DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
}

// imagePusher is the subset of the Docker client used for uploads
type imagePusher interface {
	ImagePush(ctx context.Context, image string, options image.PushOptions) (io.ReadCloser, error)
	Close() error
}

// ECRClient implements Client for Amazon Elastic Container Registry
type ECRClient struct {
	config       Config
	ecr          ecrAPI
	dockerClient imagePusher
	resolvedURI  string
}

// NewECRClient creates a new ECR client backed by the local Docker daemon
func NewECRClient(config Config, api ecrAPI) (*ECRClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, models.Wrap(models.ErrDependencyMissing, "create docker client", err)
	}

	return &ECRClient{
		config:       config,
		ecr:          api,
		dockerClient: cli,
	}, nil
}

// ResolveURI returns the configured repository URI, looking it up in ECR
// when only a repository name is configured. A looked up URI is kept for the
// lifetime of the client.
func (c *ECRClient) ResolveURI(ctx context.Context) (string, error) {
	if c.config.URI != "" {
		return c.config.URI, nil
	}
	if c.resolvedURI != "" {
		return c.resolvedURI, nil
	}

	out, err := c.ecr.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{c.config.Repository},
	})
	if err != nil {
		return "", models.Wrap(models.ErrDependencyMissing, "describe repository "+c.config.Repository, err)
	}
	if len(out.Repositories) == 0 || aws.ToString(out.Repositories[0].RepositoryUri) == "" {
		return "", models.Wrap(models.ErrDependencyMissing, "describe repository "+c.config.Repository,
			errors.New("repository not found"))
	}

	c.resolvedURI = aws.ToString(out.Repositories[0].RepositoryUri)
	log.Debug().Str("repository", c.config.Repository).Str("uri", c.resolvedURI).Msg("Resolved registry URI")
	return c.resolvedURI, nil
}

// Authenticate requests a fresh ECR authorization token
func (c *ECRClient) Authenticate(ctx context.Context) (Credentials, error) {
	uri, err := c.ResolveURI(ctx)
	if err != nil {
		return Credentials{}, err
	}

	host := registryHost(uri)
	log.Info().
		Str("registry", host).
		Str("region", c.config.Region).
		Msg("Authenticating with ECR")

	out, err := c.ecr.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return Credentials{}, ErrAuthenticationFailed{Registry: host, Err: err}
	}
	if len(out.AuthorizationData) == 0 {
		return Credentials{}, ErrAuthenticationFailed{Registry: host, Err: errors.New("no authorization data returned")}
	}

	data := out.AuthorizationData[0]
	decoded, err := base64.StdEncoding.DecodeString(aws.ToString(data.AuthorizationToken))
	if err != nil {
		return Credentials{}, ErrAuthenticationFailed{Registry: host, Err: fmt.Errorf("decode token: %w", err)}
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return Credentials{}, ErrAuthenticationFailed{Registry: host, Err: errors.New("malformed authorization token")}
	}

	creds := Credentials{
		Username:      username,
		Password:      password,
		ServerAddress: aws.ToString(data.ProxyEndpoint),
		ExpiresAt:     aws.ToTime(data.ExpiresAt),
	}
	if creds.ServerAddress == "" {
		creds.ServerAddress = host
	}

	log.Info().Time("expiresAt", creds.ExpiresAt).Msg("Successfully authenticated with ECR")
	return creds, nil
}

// Push pushes an image to ECR
func (c *ECRClient) Push(ctx context.Context, imageTag string, creds Credentials) error {
	log.Info().Str("imageTag", imageTag).Msg("Pushing image to ECR")

	encodedAuth, err := dockerregistry.EncodeAuthConfig(dockerregistry.AuthConfig{
		Username:      creds.Username,
		Password:      creds.Password,
		ServerAddress: creds.ServerAddress,
	})
	if err != nil {
		return ErrPushFailed{ImageTag: imageTag, Err: fmt.Errorf("encode auth config: %w", err)}
	}

	pushResponse, err := c.dockerClient.ImagePush(ctx, imageTag, image.PushOptions{
		RegistryAuth: encodedAuth,
	})
	if err != nil {
		return ErrPushFailed{ImageTag: imageTag, Err: err}
	}
	defer pushResponse.Close()

	if err := streamPushOutput(ctx, pushResponse); err != nil {
		return ErrPushFailed{ImageTag: imageTag, Err: err}
	}

	log.Info().Str("imageTag", imageTag).Msg("Image pushed successfully")
	return nil
}

// Close closes the Docker client connection
func (c *ECRClient) Close() error {
	if c.dockerClient != nil {
		return c.dockerClient.Close()
	}
	return nil
}

// registryHost strips the repository path from a repository URI
func registryHost(uri string) string {
	host, _, _ := strings.Cut(uri, "/")
	return host
}

// streamPushOutput drains the daemon's push progress stream
func streamPushOutput(ctx context.Context, reader io.Reader) error {
	decoder := json.NewDecoder(reader)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var msg struct {
			Status      string `json:"status"`
			Progress    string `json:"progress"`
			Error       string `json:"error"`
			ErrorDetail struct {
				Message string `json:"message"`
			} `json:"errorDetail"`
		}

		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to decode push output: %w", err)
		}

		if msg.Error != "" {
			if msg.ErrorDetail.Message != "" {
				return fmt.Errorf("push error: %s", msg.ErrorDetail.Message)
			}
			return fmt.Errorf("push error: %s", msg.Error)
		}

		if msg.Status != "" {
			log.Debug().
				Str("status", msg.Status).
				Str("progress", msg.Progress).
				Msg("Push progress")
		}
	}
}
