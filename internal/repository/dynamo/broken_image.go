// Package dynamo stores broken image reports in a DynamoDB table, for
// deployments that run the enrichment and image functions without Postgres.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/service/brokenimage"
)

// globalPartition holds reports that apply to every category.
const globalPartition = "_all"

// batchWriteLimit is DynamoDB's per-request item cap for BatchWriteItem.
const batchWriteLimit = 25

// API is the subset of the DynamoDB client used here.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// brokenItem is the stored shape of one report.
type brokenItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	URL          string `dynamodbav:"URL"`
	Category     string `dynamodbav:"Category,omitempty"`
	ReportedBy   string `dynamodbav:"ReportedBy"`
	ErrorMessage string `dynamodbav:"ErrorMessage,omitempty"`
	CreatedAt    string `dynamodbav:"CreatedAt"`
}

// BrokenImageRepo implements brokenimage.Repository on DynamoDB.
type BrokenImageRepo struct {
	client API
	table  string
	now    func() time.Time
}

// NewBrokenImageRepo creates a repository over the given table.
func NewBrokenImageRepo(client API, table string) *BrokenImageRepo {
	return &BrokenImageRepo{client: client, table: table, now: time.Now}
}

func partitionKey(c *domain.Category) string {
	if c == nil {
		return "CATEGORY#" + globalPartition
	}
	return "CATEGORY#" + c.Slug()
}

func (r *BrokenImageRepo) Report(ctx context.Context, b *domain.BrokenImage) (bool, error) {
	created := r.now().UTC()
	item := brokenItem{
		PK:           partitionKey(b.Category),
		SK:           "URL#" + b.URL,
		URL:          b.URL,
		ReportedBy:   b.ReportedBy,
		ErrorMessage: b.ErrorMessage,
		CreatedAt:    created.Format(time.RFC3339Nano),
	}
	if b.Category != nil {
		item.Category = string(*b.Category)
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return false, fmt.Errorf("marshaling broken image: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("putting broken image: %w", err)
	}
	b.CreatedAt = created
	return true, nil
}

func (r *BrokenImageRepo) queryPartition(ctx context.Context, pk string) ([]brokenItem, error) {
	var (
		out   []brokenItem
		start map[string]types.AttributeValue
	)
	for {
		res, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.table),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: pk},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", pk, err)
		}
		var page []brokenItem
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshaling broken images: %w", err)
		}
		out = append(out, page...)
		if len(res.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = res.LastEvaluatedKey
	}
}

func (r *BrokenImageRepo) scanAll(ctx context.Context) ([]brokenItem, error) {
	var (
		out   []brokenItem
		start map[string]types.AttributeValue
	)
	for {
		res, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(r.table),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scanning broken images: %w", err)
		}
		var page []brokenItem
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshaling broken images: %w", err)
		}
		out = append(out, page...)
		if len(res.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = res.LastEvaluatedKey
	}
}

// URLsFor returns URLs reported for category plus the global reports.
func (r *BrokenImageRepo) URLsFor(ctx context.Context, category domain.Category) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, pk := range []string{partitionKey(&category), partitionKey(nil)} {
		items, err := r.queryPartition(ctx, pk)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if !seen[it.URL] {
				seen[it.URL] = true
				out = append(out, it.URL)
			}
		}
	}
	return out, nil
}

func toDomain(it brokenItem) domain.BrokenImage {
	b := domain.BrokenImage{URL: it.URL, ReportedBy: it.ReportedBy, ErrorMessage: it.ErrorMessage}
	if it.Category != "" {
		c := domain.Category(it.Category)
		b.Category = &c
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, it.CreatedAt)
	return b
}

// List pages reports newest first. Paging happens in memory.
func (r *BrokenImageRepo) List(ctx context.Context, f brokenimage.ListFilter) ([]domain.BrokenImage, int, error) {
	var (
		items []brokenItem
		err   error
	)
	if f.Category != "" {
		c := domain.Category(f.Category)
		items, err = r.queryPartition(ctx, partitionKey(&c))
	} else {
		items, err = r.scanAll(ctx)
	}
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt > items[j].CreatedAt })
	total := len(items)
	out := []domain.BrokenImage{}
	for i := f.Offset; i < total && (f.Limit <= 0 || len(out) < f.Limit); i++ {
		out = append(out, toDomain(items[i]))
	}
	return out, total, nil
}

// Clear deletes the reports for category, or every report when category is nil.
func (r *BrokenImageRepo) Clear(ctx context.Context, category *domain.Category) (int64, error) {
	var (
		items []brokenItem
		err   error
	)
	if category == nil {
		items, err = r.scanAll(ctx)
	} else {
		items, err = r.queryPartition(ctx, partitionKey(category))
	}
	if err != nil {
		return 0, err
	}

	var deleted int64
	for start := 0; start < len(items); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(items) {
			end = len(items)
		}
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, it := range items[start:end] {
			reqs = append(reqs, types.WriteRequest{DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: it.PK},
					"SK": &types.AttributeValueMemberS{Value: it.SK},
				},
			}})
		}
		if err := r.batchDelete(ctx, reqs); err != nil {
			return deleted, err
		}
		deleted += int64(len(reqs))
	}
	return deleted, nil
}

func (r *BrokenImageRepo) batchDelete(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{r.table: reqs}
	for attempt := 0; len(pending[r.table]) > 0; attempt++ {
		if attempt >= 5 {
			return fmt.Errorf("batch delete: %d items left unprocessed", len(pending[r.table]))
		}
		res, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch delete: %w", err)
		}
		pending = res.UnprocessedItems
		if pending == nil {
			return nil
		}
	}
	return nil
}

func (r *BrokenImageRepo) Count(ctx context.Context) (int, error) {
	var (
		total int
		start map[string]types.AttributeValue
	)
	for {
		res, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(r.table),
			Select:            types.SelectCount,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return 0, fmt.Errorf("counting broken images: %w", err)
		}
		total += int(res.Count)
		if len(res.LastEvaluatedKey) == 0 {
			return total, nil
		}
		start = res.LastEvaluatedKey
	}
}
