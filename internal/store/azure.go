package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/mferon/blobpack/internal/config"
)

// azureAPI is the Azure Blob Storage backend behind the store.
type azureAPI struct {
	client    *azblob.Client
	container string
}

// newAzureAPI builds the blob client from config. Credential priority
// when no profile is pinned: 1) SAS  2) Service Principal  3) default
// credential chain. profile "sp" or "default" forces that path.
func newAzureAPI(cfg config.Config) (*azureAPI, error) {
	endpoint := cfg.Azure.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Azure.Account)
	}
	profile := strings.ToLower(strings.TrimSpace(cfg.Profile))

	if sasRaw := strings.TrimSpace(cfg.Azure.SASToken); sasRaw != "" && profile == "" {
		sas := strings.TrimPrefix(sasRaw, "?")
		client, err := azblob.NewClientWithNoCredential(endpoint+"?"+sas, nil)
		if err != nil {
			return nil, fmt.Errorf("azure sas client: %w", err)
		}
		return &azureAPI{client: client, container: cfg.Bucket}, nil
	}

	hasSP := cfg.Azure.ClientID != "" && cfg.Azure.ClientSecret != "" && cfg.Azure.TenantID != ""
	if profile == "sp" || (profile == "" && hasSP) {
		cred, err := azidentity.NewClientSecretCredential(
			cfg.Azure.TenantID, cfg.Azure.ClientID, cfg.Azure.ClientSecret, nil,
		)
		if err != nil {
			return nil, fmt.Errorf("azure service principal: %w", err)
		}
		client, err := azblob.NewClient(endpoint, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("azure client: %w", err)
		}
		return &azureAPI{client: client, container: cfg.Bucket}, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("azure default credential: %w", err)
	}
	client, err := azblob.NewClient(endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}
	return &azureAPI{client: client, container: cfg.Bucket}, nil
}

// Upload sends the file with its sha256 attached as blob metadata, then
// validates the remote size by listing the exact key.
func (a *azureAPI) Upload(ctx context.Context, key, localPath string) error {
	sum, size, err := sha256File(localPath)
	if err != nil {
		return fmt.Errorf("checksum: %w", err)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			log.Warn().
				Err(cerr).
				Str("file", localPath).
				Msg("failed to close source file after upload")
		}
	}()

	if _, err := a.client.UploadFile(ctx, a.container, key, f, &azblob.UploadFileOptions{
		Metadata: map[string]*string{"sha256": to.Ptr(sum)},
	}); err != nil {
		return err
	}

	found, remoteSize, err := a.sizeByList(ctx, key)
	if err != nil {
		return fmt.Errorf("validate upload: %w", err)
	}
	if !found {
		return fmt.Errorf("uploaded blob not found at %q", key)
	}
	if remoteSize != size {
		return fmt.Errorf("size mismatch: local=%d, remote=%d", size, remoteSize)
	}

	log.Debug().
		Str("action", "azure_upload").
		Str("container", a.container).
		Str("key", key).
		Int64("size", size).
		Msg("upload validated")
	return nil
}

// Download writes the blob to localPath. A failed transfer removes the
// partial local file.
func (a *azureAPI) Download(ctx context.Context, key, localPath string) error {
	out, err := os.Create(localPath)
	if err != nil {
		return err
	}
	if _, err := a.client.DownloadFile(ctx, a.container, key, out, nil); err != nil {
		_ = out.Close()
		_ = os.Remove(localPath)
		return err
	}
	return out.Close()
}

// List walks the flat blob listing under prefix and snapshots each entry.
func (a *azureAPI) List(ctx context.Context, prefix string) ([]Object, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = to.Ptr(prefix)
	}

	var objects []Object
	pager := a.client.NewListBlobsFlatPager(a.container, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, it := range page.Segment.BlobItems {
			if it.Name == nil || it.Properties == nil {
				continue
			}
			var etag string
			if it.Properties.ETag != nil {
				etag = string(*it.Properties.ETag)
			}
			var size int64
			if it.Properties.ContentLength != nil {
				size = *it.Properties.ContentLength
			}
			objects = append(objects, NewObject(*it.Name, deref(it.Properties.LastModified), size, etag))
		}
	}
	return objects, nil
}

// Delete removes one blob. Deleting a missing blob reports success so
// overlapping prune batches stay harmless.
func (a *azureAPI) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, key, nil)
	var re *azcore.ResponseError
	if errors.As(err, &re) && re.ErrorCode == string(bloberror.BlobNotFound) {
		return nil
	}
	return err
}

// sizeByList finds the exact blob and returns (found, size).
func (a *azureAPI) sizeByList(ctx context.Context, exactKey string) (bool, int64, error) {
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix:     to.Ptr(exactKey),
		MaxResults: to.Ptr(int32(1)),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return false, 0, err
		}
		for _, it := range page.Segment.BlobItems {
			if it.Name != nil && *it.Name == exactKey {
				if it.Properties != nil && it.Properties.ContentLength != nil {
					return true, *it.Properties.ContentLength, nil
				}
				return true, 0, nil
			}
		}
	}
	return false, 0, nil
}

func sha256File(path string) (sum string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
