package dynamo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/service/brokenimage"
)

// fakeTable is an in-memory stand-in for a PK/SK DynamoDB table.
type fakeTable struct {
	mu    sync.Mutex
	items map[string]map[string]map[string]types.AttributeValue
	// batches records the size of each BatchWriteItem request.
	batches []int
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: map[string]map[string]map[string]types.AttributeValue{}}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk, sk := str(in.Item["PK"]), str(in.Item["SK"])
	if _, ok := f.items[pk][sk]; ok && in.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("conditional request failed")}
	}
	if f.items[pk] == nil {
		f.items[pk] = map[string]map[string]types.AttributeValue{}
	}
	f.items[pk][sk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := str(in.ExpressionAttributeValues[":pk"])
	var out []map[string]types.AttributeValue
	for _, it := range f.items[pk] {
		out = append(out, it)
	}
	return &dynamodb.QueryOutput{Items: out, Count: int32(len(out))}, nil
}

func (f *fakeTable) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]types.AttributeValue
	for _, part := range f.items {
		for _, it := range part {
			out = append(out, it)
		}
	}
	if in.Select == types.SelectCount {
		return &dynamodb.ScanOutput{Count: int32(len(out))}, nil
	}
	return &dynamodb.ScanOutput{Items: out, Count: int32(len(out))}, nil
}

func (f *fakeTable) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reqs := range in.RequestItems {
		f.batches = append(f.batches, len(reqs))
		for _, r := range reqs {
			if r.DeleteRequest == nil {
				continue
			}
			pk, sk := str(r.DeleteRequest.Key["PK"]), str(r.DeleteRequest.Key["SK"])
			delete(f.items[pk], sk)
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func catPtr(c domain.Category) *domain.Category { return &c }

func TestReport_ConditionalPutIsIdempotent(t *testing.T) {
	table := newFakeTable()
	repo := NewBrokenImageRepo(table, "broken-images")
	ctx := context.Background()

	b := &domain.BrokenImage{URL: "https://cdn.example/a.jpg", Category: catPtr(domain.CategoryHomeRepair), ReportedBy: domain.ReportedBySystem}
	created, err := repo.Report(ctx, b)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Report(ctx, b)
	require.NoError(t, err)
	assert.False(t, created, "second report of the same url/category should not create")

	_, ok := table.items["CATEGORY#home-repair"]["URL#https://cdn.example/a.jpg"]
	assert.True(t, ok, "item stored under category slug partition")
}

func TestURLsFor_UnionsGlobalReports(t *testing.T) {
	repo := NewBrokenImageRepo(newFakeTable(), "t")
	ctx := context.Background()

	_, err := repo.Report(ctx, &domain.BrokenImage{URL: "https://cdn.example/roof.jpg", Category: catPtr(domain.CategoryRoofing)})
	require.NoError(t, err)
	_, err = repo.Report(ctx, &domain.BrokenImage{URL: "https://cdn.example/any.jpg"})
	require.NoError(t, err)
	_, err = repo.Report(ctx, &domain.BrokenImage{URL: "https://cdn.example/pipe.jpg", Category: catPtr(domain.CategoryPlumbing)})
	require.NoError(t, err)

	urls, err := repo.URLsFor(ctx, domain.CategoryRoofing)
	require.NoError(t, err)
	sort.Strings(urls)
	assert.Equal(t, []string{"https://cdn.example/any.jpg", "https://cdn.example/roof.jpg"}, urls)
}

func TestListAndCount(t *testing.T) {
	repo := NewBrokenImageRepo(newFakeTable(), "t")
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, u := range []string{"https://x.example/1.jpg", "https://x.example/2.jpg", "https://x.example/3.jpg"} {
		at := base.Add(time.Duration(i) * time.Minute)
		repo.now = func() time.Time { return at }
		_, err := repo.Report(ctx, &domain.BrokenImage{URL: u, Category: catPtr(domain.CategoryGardening)})
		require.NoError(t, err)
	}

	items, total, err := repo.List(ctx, brokenimage.ListFilter{Category: "Gardening", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, "https://x.example/3.jpg", items[0].URL, "newest first")
	require.NotNil(t, items[0].Category)
	assert.Equal(t, domain.CategoryGardening, *items[0].Category)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestClear_BatchesDeletes(t *testing.T) {
	table := newFakeTable()
	repo := NewBrokenImageRepo(table, "t")
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		_, err := repo.Report(ctx, &domain.BrokenImage{
			URL:      fmt.Sprintf("https://x.example/%d.jpg", i),
			Category: catPtr(domain.CategoryBuilding),
		})
		require.NoError(t, err)
	}
	_, err := repo.Report(ctx, &domain.BrokenImage{URL: "https://x.example/global.jpg"})
	require.NoError(t, err)

	n, err := repo.Clear(ctx, catPtr(domain.CategoryBuilding))
	require.NoError(t, err)
	assert.Equal(t, int64(30), n)
	assert.Equal(t, []int{25, 5}, table.batches)

	left, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	n, err = repo.Clear(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
