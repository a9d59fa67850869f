package storage

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"doc-chatter/internal/history"
	"doc-chatter/internal/llm"
)

// dynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type dynamoAPI interface {
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore keeps one item per conversation, keyed by ID.
type DynamoStore struct {
	db    dynamoAPI
	table string
}

// batchWriteLimit is DynamoDB's maximum number of requests per BatchWriteItem.
const batchWriteLimit = 25

// Items keep each turn once, in messages, plus the length of every batch.
// Batches are rebuilt on read; items are capped at 400 KB.
const (
	batchSizesAttr    = "batch_sizes"
	legacyBatchesAttr = "message_batches"
)

func batchSizes(batches []history.Batch) []int {
	sizes := make([]int, len(batches))
	for i, b := range batches {
		sizes[i] = len(b)
	}
	return sizes
}

// rebuildBatches cuts msgs at the stored sizes. Sizes that do not add up to
// len(msgs) yield no batches.
func rebuildBatches(msgs []llm.Message, sizes []int) []history.Batch {
	total := 0
	for _, n := range sizes {
		if n <= 0 {
			return nil
		}
		total += n
	}
	if total != len(msgs) {
		return nil
	}
	out := make([]history.Batch, 0, len(sizes))
	start := 0
	for _, n := range sizes {
		b := make(history.Batch, n)
		copy(b, msgs[start:start+n])
		out = append(out, b)
		start += n
	}
	return out
}

func encodeItem(rec Record) (map[string]types.AttributeValue, error) {
	sizes, err := attributevalue.Marshal(batchSizes(rec.Batches))
	if err != nil {
		return nil, fmt.Errorf("encode batches: %w", err)
	}
	rec.Batches = nil
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	delete(item, legacyBatchesAttr)
	item[batchSizesAttr] = sizes
	return item, nil
}

func decodeItem(item map[string]types.AttributeValue) (Record, error) {
	var rec Record
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if av, ok := item[batchSizesAttr]; ok {
		var sizes []int
		if err := attributevalue.Unmarshal(av, &sizes); err != nil {
			return Record{}, fmt.Errorf("decode batch sizes: %w", err)
		}
		rec.Batches = rebuildBatches(rec.Messages, sizes)
	}
	return rec, nil
}

func NewDynamoStore(ctx context.Context, region, endpoint, table string) (*DynamoStore, error) {
	cfg, err := loadAWSConfig(ctx, region, endpoint)
	if err != nil {
		return nil, err
	}
	s := &DynamoStore{db: dynamodb.NewFromConfig(cfg), table: table}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DynamoStore) ensureTable(ctx context.Context) error {
	_, err := s.db.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("ID"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("ID"), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	if err == nil {
		log.Printf("created dynamodb table %s", s.table)
	}
	return nil
}

func (s *DynamoStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"ID": &types.AttributeValueMemberS{Value: id}}
}

func (s *DynamoStore) FindAll(ctx context.Context) ([]Record, error) {
	var recs []Record
	p := dynamodb.NewScanPaginator(s.db, &dynamodb.ScanInput{TableName: aws.String(s.table)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.table, err)
		}
		for _, item := range page.Items {
			rec, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
	}
	sortNewestFirst(recs)
	return recs, nil
}

func (s *DynamoStore) Get(ctx context.Context, id string) (Record, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return Record{}, ErrNotFound
	}
	return decodeItem(out.Item)
}

func (s *DynamoStore) Insert(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	item, err := encodeItem(rec)
	if err != nil {
		return "", err
	}
	if _, err := s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return "", fmt.Errorf("put %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

func (s *DynamoStore) Update(ctx context.Context, id string, upd Update) error {
	msgs, err := attributevalue.Marshal(upd.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	sizes, err := attributevalue.Marshal(batchSizes(upd.Batches))
	if err != nil {
		return fmt.Errorf("encode batches: %w", err)
	}
	ts, err := attributevalue.Marshal(upd.UpdatedAt)
	if err != nil {
		return fmt.Errorf("encode timestamp: %w", err)
	}
	_, err = s.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.key(id),
		ConditionExpression: aws.String("attribute_exists(ID)"),
		UpdateExpression:    aws.String("SET #m = :m, #b = :b, #u = :u REMOVE #lb"),
		ExpressionAttributeNames: map[string]string{
			"#m":  "messages",
			"#b":  batchSizesAttr,
			"#u":  "last_update",
			"#lb": legacyBatchesAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":m": msgs,
			":b": sizes,
			":u": ts,
		},
	})
	var condFailed *types.ConditionalCheckFailedException
	if errors.As(err, &condFailed) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	return nil
}

func (s *DynamoStore) DeleteAll(ctx context.Context) error {
	var pending []types.WriteRequest
	p := dynamodb.NewScanPaginator(s.db, &dynamodb.ScanInput{
		TableName:            aws.String(s.table),
		ProjectionExpression: aws.String("ID"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan %s: %w", s.table, err)
		}
		for _, item := range page.Items {
			pending = append(pending, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{"ID": item["ID"]}},
			})
		}
	}
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(batchWriteLimit, len(pending))
		out, err := s.db.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.table: pending[:n]},
		})
		if err != nil {
			return fmt.Errorf("batch delete: %w", err)
		}
		pending = append(pending[n:], out.UnprocessedItems[s.table]...)
	}
	return nil
}
