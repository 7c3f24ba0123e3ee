package revkit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/h2non/filetype"

	"github.com/Revolt-Unofficial-Clients/revkit/models"
)

// Bucket is the attachment service tag a file was uploaded to.
type Bucket string

const (
	BucketAttachments Bucket = "attachments"
	BucketAvatars     Bucket = "avatars"
	BucketBackgrounds Bucket = "backgrounds"
	BucketBanners     Bucket = "banners"
	BucketEmojis      Bucket = "emojis"
	BucketIcons       Bucket = "icons"
)

// Attachment is a file stored in the attachment service.
type Attachment struct {
	client *Client
	file   models.File
}

func newAttachment(c *Client, f *models.File) *Attachment {
	if f == nil {
		return nil
	}
	return &Attachment{client: c, file: *f}
}

func (a *Attachment) ID() string                    { return a.file.ID }
func (a *Attachment) Bucket() Bucket                { return Bucket(a.file.Tag) }
func (a *Attachment) Filename() string              { return a.file.Filename }
func (a *Attachment) ContentType() string           { return a.file.ContentType }
func (a *Attachment) Size() int64                   { return a.file.Size }
func (a *Attachment) Metadata() models.FileMetadata { return a.file.Metadata }
func (a *Attachment) CreatedAt() time.Time          { return idTime(a.file.ID) }
func (a *Attachment) Source() models.File           { return a.file }

type URLOptions struct {
	MaxSide int
	Size    int
	Width   int
	Height  int
	// AllowAnimation skips the resize query for GIFs so they keep playing.
	AllowAnimation bool
	// Fallback is returned when no URL can be built.
	Fallback string
}

// URL builds the download URL. It returns opts.Fallback when the attachment
// service is disabled or the configuration was not fetched.
func (a *Attachment) URL(opts *URLOptions) string {
	if opts == nil {
		opts = &URLOptions{}
	}
	if a == nil {
		return opts.Fallback
	}
	cfg := a.client.Configuration()
	if cfg == nil || !cfg.Features.Autumn.Enabled {
		return opts.Fallback
	}

	md := a.file.Metadata
	if md.Type == "Image" {
		if min(md.Width, md.Height) <= 0 ||
			(a.file.ContentType == "image/gif" && max(md.Width, md.Height) >= 1024) {
			return opts.Fallback
		}
	}

	u := fmt.Sprintf("%s/%s/%s", cfg.Features.Autumn.URL, a.file.Tag, a.file.ID)
	if opts.AllowAnimation && a.file.ContentType == "image/gif" {
		return u
	}
	q := url.Values{}
	for k, v := range map[string]int{
		"max_side": opts.MaxSide, "size": opts.Size, "width": opts.Width, "height": opts.Height,
	} {
		if v > 0 {
			q.Set(k, strconv.Itoa(v))
		}
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// UploadAttachment uploads data to the attachment service and returns the
// new file ID. The content type is sniffed from the data.
func (c *Client) UploadAttachment(ctx context.Context, filename string, data io.Reader, bucket Bucket) (string, error) {
	cfg, err := c.FetchConfiguration(ctx, false)
	if err != nil {
		return "", err
	}
	if !cfg.Features.Autumn.Enabled {
		return "", fmt.Errorf("upload attachment: %w", ErrFeatureDisabled)
	}
	if bucket == "" {
		bucket = BucketAttachments
	}

	body, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("upload attachment: %w", err)
	}
	contentType := "application/octet-stream"
	if kind, err := filetype.Match(body); err == nil && kind != filetype.Unknown {
		contentType = kind.MIME.Value
	}

	var res models.UploadResponse
	endpoint := fmt.Sprintf("%s/%s", cfg.Features.Autumn.URL, bucket)
	if err := c.api.Upload(ctx, endpoint, filename, contentType, bytes.NewReader(body), &res); err != nil {
		return "", fmt.Errorf("upload attachment: %w", err)
	}
	return res.ID, nil
}

// ProxyURL routes an external URL through the link proxy. It returns ""
// when the proxy is disabled.
func (c *Client) ProxyURL(target string) string {
	cfg := c.Configuration()
	if cfg == nil || !cfg.Features.January.Enabled {
		return ""
	}
	return fmt.Sprintf("%s/proxy?url=%s", cfg.Features.January.URL, url.QueryEscape(target))
}
