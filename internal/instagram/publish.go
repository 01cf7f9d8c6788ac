package instagram

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/manash/imgpost/internal/provider"
	"github.com/manash/imgpost/pkg/models"
)

type PublishRequest struct {
	Source   models.ImageSource
	Caption  string
	Hashtags []string
}

type PublishOptions struct {
	// Validate checks the token and the account before anything is created.
	Validate bool
	// CheckQuota aborts when the account has no publishes left.
	CheckQuota bool
}

// CreateContainer stages the image and caption as a media container.
func (c *Client) CreateContainer(ctx context.Context, src models.ImageSource, caption string) (*models.MediaContainer, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrValidation, err)
	}

	path := "/" + c.accountID + "/media"

	var (
		status int
		body   []byte
		err    error
	)
	if src.IsURL() {
		form := url.Values{}
		form.Set("image_url", src.URL)
		form.Set("caption", caption)
		status, body, err = c.postForm(ctx, path, form)
	} else {
		buf, contentType, merr := c.containerMultipart(src.Data, caption)
		if merr != nil {
			return nil, merr
		}
		status, body, err = c.postMultipart(ctx, path, buf, contentType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrPublish, err)
	}

	if status != http.StatusOK {
		return nil, &provider.StatusError{Kind: provider.ErrPublish, StatusCode: status, Body: string(body)}
	}

	id, err := decodeID(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrPublish, err)
	}

	c.logger.Info("media container created", zap.String("creation_id", id))
	return &models.MediaContainer{CreationID: id}, nil
}

func (c *Client) containerMultipart(data []byte, caption string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write image: %w", err)
	}

	if err := writer.WriteField("caption", caption); err != nil {
		return nil, "", fmt.Errorf("failed to write caption: %w", err)
	}
	if err := writer.WriteField("access_token", c.accessToken); err != nil {
		return nil, "", fmt.Errorf("failed to write access token: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// PublishContainer publishes a previously created container and returns the post id.
func (c *Client) PublishContainer(ctx context.Context, container *models.MediaContainer) (string, error) {
	if container == nil || container.CreationID == "" {
		return "", fmt.Errorf("%w: a media container is required", provider.ErrValidation)
	}

	form := url.Values{}
	form.Set("creation_id", container.CreationID)

	status, body, err := c.postForm(ctx, "/"+c.accountID+"/media_publish", form)
	if err != nil {
		return "", fmt.Errorf("%w: %w", provider.ErrPublish, err)
	}
	if status != http.StatusOK {
		return "", &provider.StatusError{Kind: provider.ErrPublish, StatusCode: status, Body: string(body)}
	}

	postID, err := decodeID(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrPublish, err)
	}

	c.logger.Info("media published", zap.String("post_id", postID))
	return postID, nil
}

// Publish runs the optional checks, then creates and publishes a container.
// Failures are reported in the result, never returned. A container whose
// publish call fails is left on the server.
func (c *Client) Publish(ctx context.Context, req PublishRequest, opts PublishOptions) models.PublishResult {
	if opts.Validate {
		if err := c.ValidateToken(ctx); err != nil {
			return c.failure("token validation", err)
		}
		if err := c.ValidateAccount(ctx); err != nil {
			return c.failure("account validation", err)
		}
	}

	if opts.CheckQuota {
		if err := c.CheckQuota(ctx); err != nil {
			return c.failure("quota check", err)
		}
	}

	caption := models.ComposeCaption(req.Caption, req.Hashtags)

	container, err := c.CreateContainer(ctx, req.Source, caption)
	if err != nil {
		return c.failure("create container", err)
	}

	postID, err := c.PublishContainer(ctx, container)
	if err != nil {
		c.logger.Warn("container left unpublished", zap.String("creation_id", container.CreationID))
		return c.failure("publish container", err)
	}

	return models.NewSuccessResult(postID, c.now())
}

func (c *Client) failure(step string, err error) models.PublishResult {
	c.logger.Error("publish failed", zap.String("step", step), zap.Error(err))
	return models.NewErrorResult(provider.Message(err), c.now())
}
