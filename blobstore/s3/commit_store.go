package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/exprvec/exprvec/blobstore"
)

// CurrentKey is the virtual blob name that resolves to the latest
// committed manifest path.
const CurrentKey = "CURRENT"

// ErrConcurrentModification is returned when another writer committed
// a manifest version first.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// DDBClient is the subset of the DynamoDB API the commit store uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DDBCommitStore wraps an S3 store with a DynamoDB commit log so that
// concurrent writers can safely advance a CURRENT manifest pointer.
// S3 has no compare-and-swap; DynamoDB conditional writes provide it.
//
// Reads and writes of any blob named CURRENT are intercepted, whatever
// directory it sits in: a read queries the latest committed version, a
// write appends the next version with a conditional put and fails with
// ErrConcurrentModification if another writer got there first. Each
// directory keeps its own version sequence, so every model registry in
// the store commits independently. All other names pass through to S3.
//
// Table schema:
//   - Partition key: base_uri (string), the store's S3 location joined
//     with the pointer's directory
//   - Sort key: version (number), monotonically increasing
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name exprvec-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	s3Store   *Store
	ddbClient DDBClient
	tableName string
	baseURI   string // partition key, "s3://bucket/prefix"
}

// NewDDBCommitStore creates a commit store over the given S3 store.
// baseURI is used as the partition key and should uniquely identify
// the store location, e.g. "s3://bucket/prefix".
func NewDDBCommitStore(s3Store *Store, ddbClient DDBClient, tableName, baseURI string) *DDBCommitStore {
	return &DDBCommitStore{
		s3Store:   s3Store,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// partition derives the commit log partition for a pointer blob. Root
// pointers map to the bare store location, pointers inside a directory
// get the directory appended, so distinct registries never share a
// version sequence.
func (s *DDBCommitStore) partition(name string) string {
	dir := path.Dir(name)
	if dir == "." {
		return s.baseURI
	}
	return strings.TrimSuffix(s.baseURI, "/") + "/" + dir
}

// isCurrent reports whether a blob name addresses a commit pointer.
func isCurrent(name string) bool {
	return path.Base(name) == CurrentKey
}

// Open opens a blob for reading. Opening a CURRENT pointer yields a
// virtual blob holding the latest committed manifest path.
func (s *DDBCommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if isCurrent(name) {
		version, manifestPath, err := s.latestVersion(ctx, name)
		if err != nil {
			return nil, err
		}
		if version == 0 {
			return nil, blobstore.ErrNotFound
		}
		return &virtualCurrentBlob{content: []byte(manifestPath)}, nil
	}
	return s.s3Store.Open(ctx, name)
}

// Put writes a blob. Writing a CURRENT pointer commits the given
// manifest path as the next version.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if isCurrent(name) {
		return s.commitVersion(ctx, name, string(data))
	}
	return s.s3Store.Put(ctx, name, data)
}

// PutIfNotExists forwards create-once writes to the underlying S3
// store, keeping numbered manifest blobs conflict-checked as well.
func (s *DDBCommitStore) PutIfNotExists(ctx context.Context, name string, data []byte) error {
	return s.s3Store.PutIfNotExists(ctx, name, data)
}

// Create creates a writable blob in the underlying S3 store.
func (s *DDBCommitStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	return s.s3Store.Create(ctx, name)
}

// Delete removes a blob from the underlying S3 store.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	return s.s3Store.Delete(ctx, name)
}

// List lists blobs in the underlying S3 store.
func (s *DDBCommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.s3Store.List(ctx, prefix)
}

// latestVersion returns the highest committed version of a pointer and
// its manifest path, or (0, "", nil) when nothing has been committed
// yet.
func (s *DDBCommitStore) latestVersion(ctx context.Context, pointer string) (uint64, string, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.partition(pointer)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("query commit log: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("commit log item has no version attribute")
	}
	pathAttr, ok := item["manifest_path"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("commit log item has no manifest_path attribute")
	}

	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse commit version: %w", err)
	}

	return version, pathAttr.Value, nil
}

// commitVersion appends the next version of a pointer with a
// conditional put.
func (s *DDBCommitStore) commitVersion(ctx context.Context, pointer, manifestPath string) error {
	currentVersion, _, err := s.latestVersion(ctx, pointer)
	if err != nil {
		return err
	}

	newVersion := currentVersion + 1

	_, err = s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":      &types.AttributeValueMemberS{Value: s.partition(pointer)},
			"version":       &types.AttributeValueMemberN{Value: strconv.FormatUint(newVersion, 10)},
			"manifest_path": &types.AttributeValueMemberS{Value: manifestPath},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("commit version %d: %w", newVersion, err)
	}

	return nil
}

// virtualCurrentBlob holds the resolved CURRENT content in memory.
type virtualCurrentBlob struct {
	content []byte
}

func (b *virtualCurrentBlob) Close() error {
	return nil
}

func (b *virtualCurrentBlob) Size() int64 {
	return int64(len(b.content))
}

func (b *virtualCurrentBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off >= int64(len(b.content)) {
		return 0, io.EOF
	}
	n := copy(p, b.content[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *virtualCurrentBlob) Bytes() ([]byte, error) {
	return b.content, nil
}
