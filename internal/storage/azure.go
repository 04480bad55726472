package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/checksum"
)

// AzureConfig configures Azure Blob Storage access. A connection string
// wins over an account key; with neither, DefaultAzureCredential is used.
type AzureConfig struct {
	AccountName      string `yaml:"account_name"`
	AccountKey       string `yaml:"account_key"`
	ConnectionString string `yaml:"connection_string"`
}

// Azure implements Backend for an az://container/prefix root.
type Azure struct {
	root          string
	containerName string
	container     *container.Client
	prefix        string
	contentLimit  int64
}

// NewAzure opens a client for the container named in root.
func NewAzure(root, containerName, prefix string, cfg AzureConfig, contentLimit int64) (*Azure, error) {
	client, err := newAzureClient(cfg)
	if err != nil {
		return nil, err
	}
	if contentLimit <= 0 {
		contentLimit = DefaultContentLimit
	}
	return &Azure{
		root:          root,
		containerName: containerName,
		container:     client.ServiceClient().NewContainerClient(containerName),
		prefix:        prefix,
		contentLimit:  contentLimit,
	}, nil
}

func newAzureClient(cfg AzureConfig) (*azblob.Client, error) {
	if cfg.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("storage: azure client from connection string: %w", err)
		}
		return client, nil
	}
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("storage: azure account name or connection string is required: %w", apperr.ErrInvalidRoot)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	if cfg.AccountKey != "" {
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("storage: azure shared key: %w", err)
		}
		client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("storage: azure client with shared key: %w", err)
		}
		return client, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("storage: azure default credential: %w", err)
	}
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: azure client: %w", err)
	}
	return client, nil
}

func (a *Azure) Root() string { return a.root }

func (a *Azure) ListBatches(ctx context.Context) ([]string, error) {
	pager := a.container.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{Prefix: &a.prefix})
	var out []string
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list batches: %w", err)
		}
		if resp.Segment == nil {
			continue
		}
		for _, p := range resp.Segment.BlobPrefixes {
			if p.Name == nil {
				continue
			}
			if name, _ := objectName(*p.Name, a.prefix); name != "" {
				out = append(out, name[:len(name)-1])
			}
		}
	}
	return out, nil
}

func (a *Azure) ListEntries(ctx context.Context, batch string) ([]Entry, error) {
	prefix := a.prefix + batch + "/"
	pager := a.container.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &prefix})
	var out []Entry
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list entries: %w", err)
		}
		if resp.Segment == nil {
			continue
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			name, plain := objectName(*item.Name, prefix)
			if name == "" {
				continue
			}
			out = append(out, Entry{Name: name, Plain: plain})
		}
	}
	return out, nil
}

func (a *Azure) ReadBytes(ctx context.Context, batch, name string) ([]byte, error) {
	resp, err := a.container.NewBlobClient(a.prefix+batch+"/"+name).DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: download %s/%s: %w", batch, name, azureErr(err))
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s/%s: %w", batch, name, err)
	}
	return data, nil
}

// Describe records the blob's Content-MD5 property when the uploader set one.
func (a *Azure) Describe(ctx context.Context, batch, name string) (*Object, error) {
	key := a.prefix + batch + "/" + name
	props, err := a.container.NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: properties %s/%s: %w", batch, name, azureErr(err))
	}
	var size int64
	if props.ContentLength != nil {
		size = *props.ContentLength
	}
	uri := fmt.Sprintf("az://%s/%s", a.containerName, key)
	obj, err := describeObject(size, uri, a.contentLimit, func() ([]byte, error) {
		return a.ReadBytes(ctx, batch, name)
	})
	if err != nil {
		return nil, err
	}
	if len(props.ContentMD5) == 16 {
		if err := obj.Checksums.Put(checksum.MD5, hex.EncodeToString(props.ContentMD5)); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func azureErr(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, respErr.ErrorCode)
	}
	return err
}
