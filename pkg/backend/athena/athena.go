// Package athena implements pkg/backend.Backend against CloudTrail logs
// partitioned and queried through Amazon Athena, following the table
// layout and partition-bootstrap strategy of Alex Smolen's "Partitioning
// CloudTrail Logs in Athena" (https://medium.com/@alsmola/partitioning-cloudtrail-logs-in-athena-29add93ee070).
package athena

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/cloudtracker/cloudtracker/pkg/backend"
)

// numMonthsForPartitions is the partition bootstrap window: CloudTracker
// creates (and will query) partitions for this many trailing months.
const numMonthsForPartitions = 12

// Config is the "athena" section of the CloudTracker config file.
type Config struct {
	Bucket         string // S3 bucket holding CloudTrail logs
	Path           string // key prefix under Bucket, before "AWSLogs/<account>/CloudTrail"
	OutputBucket   string // optional; defaults to aws-athena-query-results-<account>-<region>
	Database       string // optional; defaults to "cloudtrail"
	SkipSetup      bool   // skip table/partition bootstrap (logs already have them)
}

// Backend queries CloudTrail logs stored as an Athena external table.
type Backend struct {
	athenaClient *athena.Client
	s3Client     *s3.Client
	stsClient    *sts.Client
	ec2Client    *ec2.Client

	database     string
	table        string
	outputBucket string
	logPath      string
	bucket       string
	path         string

	searchFilter string
	skipSetup    bool

	outstandingMu       sync.Mutex
	outstandingQueryIDs []string
}

// New builds a Backend for accountID's CloudTrail logs over dateRange. It
// opens AWS clients and compiles the date filter, but performs no network
// calls; call Setup to prepare and validate the backend.
func New(ctx context.Context, cfg Config, accountID string, dateRange backend.DateRange) (*Backend, error) {
	// Compare against the start of the day 365 days ago, so the CLI's default
	// start (computed a moment earlier as now minus 365 days) is accepted.
	cutoff := time.Now().AddDate(0, 0, -365).Truncate(24 * time.Hour)
	if dateRange.Start.Before(cutoff) {
		return nil, &backend.SetupError{
			Op:  "validating date range",
			Err: fmt.Errorf("start date is over a year old; CloudTracker only creates/uses partitions for the past %d months", numMonthsForPartitions),
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, &backend.SetupError{Op: "loading AWS config", Err: err}
	}

	database := cfg.Database
	if database == "" {
		database = "cloudtrail"
	}

	b := &Backend{
		athenaClient: athena.NewFromConfig(awsCfg),
		s3Client:     s3.NewFromConfig(awsCfg),
		stsClient:    sts.NewFromConfig(awsCfg),
		ec2Client:    ec2.NewFromConfig(awsCfg),
		database:     database,
		table:        fmt.Sprintf("cloudtrail_logs_%s", accountID),
		outputBucket: cfg.OutputBucket,
		logPath:      fmt.Sprintf("s3://%s/%s/AWSLogs/%s/CloudTrail", cfg.Bucket, cfg.Path, accountID),
		bucket:       cfg.Bucket,
		path:         cfg.Path,
		searchFilter: compileDateFilter(dateRange),
		skipSetup:    cfg.SkipSetup,
	}
	return b, nil
}

// Setup validates AWS access, checks for log data, and ensures the
// database/table/partitions exist. Idempotent.
func (b *Backend) Setup(ctx context.Context) error {
	identity, err := b.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return &backend.SetupError{Op: "checking AWS identity", Err: err}
	}
	slog.Info("using AWS identity", slog.String("arn", aws.ToString(identity.Arn)))

	if b.outputBucket == "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return &backend.SetupError{Op: "resolving output bucket region", Err: err}
		}
		b.outputBucket = fmt.Sprintf("s3://aws-athena-query-results-%s-%s", aws.ToString(identity.Account), awsCfg.Region)
	}
	slog.Info("using Athena output bucket", slog.String("bucket", b.outputBucket))
	slog.Info("CloudTrail log path", slog.String("path", b.logPath))

	if b.skipSetup {
		slog.Info("skipping initial table/partition setup")
		return nil
	}

	if err := b.checkBucketHasLogs(ctx); err != nil {
		return err
	}
	if err := b.ensureDatabase(ctx); err != nil {
		return err
	}
	if err := b.ensureTable(ctx); err != nil {
		return err
	}
	return b.ensurePartitions(ctx)
}

// Teardown stops any queries still outstanding at process exit, best-effort.
func (b *Backend) Teardown(ctx context.Context) error {
	b.outstandingMu.Lock()
	ids := append([]string(nil), b.outstandingQueryIDs...)
	b.outstandingMu.Unlock()

	for _, id := range ids {
		if _, err := b.athenaClient.StopQueryExecution(ctx, &athena.StopQueryExecutionInput{
			QueryExecutionId: aws.String(id),
		}); err != nil {
			slog.Warn("failed to stop outstanding query", slog.String("query_execution_id", id), slog.Any("error", err))
		}
	}
	return nil
}

func (b *Backend) checkBucketHasLogs(ctx context.Context) error {
	resp, err := b.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(b.path),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return &backend.SetupError{Op: "checking S3 bucket contents", Err: err}
	}
	if len(resp.Contents) == 0 {
		return &backend.SetupError{
			Op:  "checking S3 bucket contents",
			Err: fmt.Errorf("s3://%s/%s has no contents; ensure CloudTrail is logging there", b.bucket, b.path),
		}
	}
	return nil
}

func (b *Backend) ensureDatabase(ctx context.Context) error {
	query := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s COMMENT 'Created by CloudTracker'", b.database)
	if _, err := b.runQuery(ctx, query, ""); err != nil {
		return &backend.SetupError{Op: "creating database", Err: err}
	}
	return nil
}

const tableDDL = `CREATE EXTERNAL TABLE IF NOT EXISTS %s (
	eventversion string COMMENT 'from deserializer',
	useridentity struct<type:string,principalid:string,arn:string,accountid:string,invokedby:string,accesskeyid:string,username:string,sessioncontext:struct<attributes:struct<mfaauthenticated:string,creationdate:string>,sessionissuer:struct<type:string,principalid:string,arn:string,accountid:string,username:string>>> COMMENT 'from deserializer',
	eventtime string COMMENT 'from deserializer',
	eventsource string COMMENT 'from deserializer',
	eventname string COMMENT 'from deserializer',
	awsregion string COMMENT 'from deserializer',
	sourceipaddress string COMMENT 'from deserializer',
	useragent string COMMENT 'from deserializer',
	errorcode string COMMENT 'from deserializer',
	errormessage string COMMENT 'from deserializer',
	requestparameters string COMMENT 'from deserializer',
	responseelements string COMMENT 'from deserializer',
	additionaleventdata string COMMENT 'from deserializer',
	requestid string COMMENT 'from deserializer',
	eventid string COMMENT 'from deserializer',
	resources array<struct<arn:string,accountid:string,type:string>> COMMENT 'from deserializer',
	eventtype string COMMENT 'from deserializer',
	apiversion string COMMENT 'from deserializer',
	readonly string COMMENT 'from deserializer',
	recipientaccountid string COMMENT 'from deserializer',
	serviceeventdetails string COMMENT 'from deserializer',
	sharedeventid string COMMENT 'from deserializer',
	vpcendpointid string COMMENT 'from deserializer')
	PARTITIONED BY (region string, year string, month string)
	ROW FORMAT SERDE 'com.amazon.emr.hive.serde.CloudTrailSerde'
	STORED AS INPUTFORMAT 'com.amazon.emr.cloudtrail.CloudTrailInputFormat'
	OUTPUTFORMAT 'org.apache.hadoop.hive.ql.io.HiveIgnoreKeyTextOutputFormat'
	LOCATION '%s'`

func (b *Backend) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(tableDDL, b.table, b.logPath)
	if _, err := b.runQuery(ctx, query, b.database); err != nil {
		return &backend.SetupError{Op: "creating external table", Err: err}
	}
	return nil
}
