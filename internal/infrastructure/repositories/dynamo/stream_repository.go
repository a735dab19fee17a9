package dynamo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
)

// API is the subset of the DynamoDB client the repository uses.
type API interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// streamItem is the table row of one stream. stream_id is the partition key;
// position preserves collection order across scans.
type streamItem struct {
	StreamID         string     `dynamodbav:"stream_id"`
	UserID           string     `dynamodbav:"user_id"`
	Position         int        `dynamodbav:"position"`
	Title            string     `dynamodbav:"title"`
	DestinationKey   string     `dynamodbav:"destination_key"`
	Quality          string     `dynamodbav:"quality"`
	Orientation      string     `dynamodbav:"orientation"`
	Looping          bool       `dynamodbav:"looping"`
	MaxDurationHours *int       `dynamodbav:"max_duration_hours,omitempty"`
	FileName         string     `dynamodbav:"file_name,omitempty"`
	OverlayText      string     `dynamodbav:"overlay_text,omitempty"`
	Status           string     `dynamodbav:"status"`
	StartTime        *time.Time `dynamodbav:"start_time,omitempty"`
	Ping             int        `dynamodbav:"ping"`
	ViewerCount      int        `dynamodbav:"viewer_count"`
	DroppedFrames    int        `dynamodbav:"dropped_frames"`
	UploadSpeed      float64    `dynamodbav:"upload_speed"`
	CreatedAt        time.Time  `dynamodbav:"created_at"`
}

func toItem(s *domain.Stream, position int) streamItem {
	return streamItem{
		StreamID:         string(s.ID),
		UserID:           string(s.Owner),
		Position:         position,
		Title:            s.Title,
		DestinationKey:   s.DestinationKey,
		Quality:          string(s.Quality),
		Orientation:      string(s.Orientation),
		Looping:          s.Looping,
		MaxDurationHours: s.MaxDurationHours,
		FileName:         s.FileName,
		OverlayText:      s.OverlayText,
		Status:           string(s.Status),
		StartTime:        s.StartTime,
		Ping:             s.Ping,
		ViewerCount:      s.ViewerCount,
		DroppedFrames:    s.DroppedFrames,
		UploadSpeed:      s.UploadSpeed,
		CreatedAt:        s.CreatedAt,
	}
}

func (it streamItem) toStream() *domain.Stream {
	return &domain.Stream{
		ID:               domain.StreamID(it.StreamID),
		Owner:            domain.UserID(it.UserID),
		Title:            it.Title,
		DestinationKey:   it.DestinationKey,
		Quality:          domain.Quality(it.Quality),
		Orientation:      domain.Orientation(it.Orientation),
		Looping:          it.Looping,
		MaxDurationHours: it.MaxDurationHours,
		FileName:         it.FileName,
		OverlayText:      it.OverlayText,
		Status:           domain.StreamStatus(it.Status),
		StartTime:        it.StartTime,
		Telemetry: domain.Telemetry{
			Ping:          it.Ping,
			ViewerCount:   it.ViewerCount,
			DroppedFrames: it.DroppedFrames,
			UploadSpeed:   it.UploadSpeed,
		},
		CreatedAt: it.CreatedAt,
	}
}

// DynamoStreamRepository stores one item per stream. SaveAll upserts every
// stream and then deletes rows that are no longer part of the collection.
type DynamoStreamRepository struct {
	client    API
	tableName string
}

func NewDynamoStreamRepository(client API, tableName string) *DynamoStreamRepository {
	return &DynamoStreamRepository{
		client:    client,
		tableName: tableName,
	}
}

// NewClient builds a DynamoDB client from the default AWS credential chain.
// A non-empty endpoint targets a local emulator.
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (r *DynamoStreamRepository) LoadAll(ctx context.Context) ([]*domain.Stream, error) {
	items, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	streams := make([]*domain.Stream, 0, len(items))
	for _, it := range items {
		streams = append(streams, it.toStream())
	}
	return streams, nil
}

func (r *DynamoStreamRepository) SaveAll(ctx context.Context, streams []*domain.Stream) error {
	existing, err := r.scan(ctx)
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(streams))
	for i, s := range streams {
		item, err := attributevalue.MarshalMap(toItem(s, i))
		if err != nil {
			return fmt.Errorf("failed to marshal stream %s: %w", s.ID, err)
		}
		_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(r.tableName),
			Item:      item,
		})
		if err != nil {
			return fmt.Errorf("failed to save stream %s: %w", s.ID, err)
		}
		keep[string(s.ID)] = true
	}

	for _, it := range existing {
		if keep[it.StreamID] {
			continue
		}
		_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(r.tableName),
			Key: map[string]types.AttributeValue{
				"stream_id": &types.AttributeValueMemberS{Value: it.StreamID},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete stream %s: %w", it.StreamID, err)
		}
	}
	return nil
}

func (r *DynamoStreamRepository) scan(ctx context.Context) ([]streamItem, error) {
	var items []streamItem
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName: aws.String(r.tableName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan streams: %w", err)
		}
		var batch []streamItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal streams: %w", err)
		}
		items = append(items, batch...)
	}
	return items, nil
}

var _ ports.StreamStore = (*DynamoStreamRepository)(nil)
