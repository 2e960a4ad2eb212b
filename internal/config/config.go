package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBType     string `env:"DBType" envDefault:"sqlite"`
	DSNURL     string `env:"DSN_URL" envDefault:""`
	DBUser     string `env:"DBUser" envDefault:""`
	DBPassword string `env:"DBPassword" envDefault:""`
	DBAddr     string `env:"DBAddr" envDefault:""`
	DBName     string `env:"DBName" envDefault:"studio"`
	DBPath     string `env:"DBPath" envDefault:"datas/studio.db"`
	DBPort     string `env:"DBPort" envDefault:"3306"`

	StorageType          string `env:"STORAGE_TYPE" envDefault:"local"`
	StorageLocalDir      string `env:"STORAGE_LOCAL_DIR" envDefault:"datas/assets"`
	StoragePublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL" envDefault:"/files"`

	// S3 兼容存储配置
	StorageS3Region          string `env:"STORAGE_S3_REGION"`
	StorageS3Bucket          string `env:"STORAGE_S3_BUCKET"`
	StorageS3Prefix          string `env:"STORAGE_S3_PREFIX"`
	StorageS3Endpoint        string `env:"STORAGE_S3_ENDPOINT"`
	StorageS3AccessKeyID     string `env:"STORAGE_S3_ACCESS_KEY_ID"`
	StorageS3SecretAccessKey string `env:"STORAGE_S3_SECRET_ACCESS_KEY"`
	StorageS3SessionToken    string `env:"STORAGE_S3_SESSION_TOKEN"`
	StorageS3ForcePathStyle  bool   `env:"STORAGE_S3_FORCE_PATH_STYLE" envDefault:"false"`

	// 阿里云 OSS 存储配置
	StorageOSSEndpoint        string `env:"STORAGE_OSS_ENDPOINT"`
	StorageOSSBucket          string `env:"STORAGE_OSS_BUCKET"`
	StorageOSSPrefix          string `env:"STORAGE_OSS_PREFIX"`
	StorageOSSAccessKeyID     string `env:"STORAGE_OSS_ACCESS_KEY_ID"`
	StorageOSSAccessKeySecret string `env:"STORAGE_OSS_ACCESS_KEY_SECRET"`

	// 腾讯云 COS 存储配置
	StorageCOSBucketURL string `env:"STORAGE_COS_BUCKET_URL"`
	StorageCOSPrefix    string `env:"STORAGE_COS_PREFIX"`
	StorageCOSSecretID  string `env:"STORAGE_COS_SECRET_ID"`
	StorageCOSSecretKey string `env:"STORAGE_COS_SECRET_KEY"`

	// Cloudflare R2 存储配置
	StorageR2AccountID       string `env:"STORAGE_R2_ACCOUNT_ID"`
	StorageR2Endpoint        string `env:"STORAGE_R2_ENDPOINT"`
	StorageR2Region          string `env:"STORAGE_R2_REGION" envDefault:"auto"`
	StorageR2Bucket          string `env:"STORAGE_R2_BUCKET"`
	StorageR2Prefix          string `env:"STORAGE_R2_PREFIX"`
	StorageR2AccessKeyID     string `env:"STORAGE_R2_ACCESS_KEY_ID"`
	StorageR2SecretAccessKey string `env:"STORAGE_R2_SECRET_ACCESS_KEY"`

	// KIE 任务状态接口
	KieAPIKey                string            `env:"KIE_API_KEY" envDefault:""`
	KieBaseURL               string            `env:"KIE_BASE_URL" envDefault:"https://api.kie.ai"`
	KieRecordInfoPath        string            `env:"KIE_RECORD_INFO_PATH" envDefault:"/api/v1/jobs/recordInfo"`
	KieVideoStatusPath       string            `env:"KIE_VIDEO_STATUS_PATH" envDefault:"/api/v1/video/status"`
	KieStatusTimeout         time.Duration     `env:"KIE_STATUS_TIMEOUT" envDefault:"30s"`
	KieMaxAttempts           int               `env:"KIE_MAX_ATTEMPTS" envDefault:"3"`
	KieRetryBaseDelay        time.Duration     `env:"KIE_RETRY_BASE_DELAY" envDefault:"2s"`
	KieVideoFallbackProvider string            `env:"KIE_VIDEO_FALLBACK_PROVIDER" envDefault:"veo"`
	KieModelProviders        map[string]string `env:"KIE_MODEL_PROVIDERS" envSeparator:"," envKeyValSeparator:":"`

	// 预览图生成
	PreviewEnabled     bool   `env:"PREVIEW_ENABLED" envDefault:"true"`
	PreviewMaxWidth    int    `env:"PREVIEW_MAX_WIDTH" envDefault:"480"`
	PreviewClipSeconds int    `env:"PREVIEW_CLIP_SECONDS" envDefault:"3"`
	PreviewConcurrency int    `env:"PREVIEW_CONCURRENCY" envDefault:"4"`
	PreviewQueueSize   int    `env:"PREVIEW_QUEUE_SIZE" envDefault:"64"`
	FFmpegPath         string `env:"FFMPEG_PATH" envDefault:""`

	BillingPrivilegedRoles []string `env:"BILLING_PRIVILEGED_ROLES" envSeparator:"," envDefault:"admin,manager,super_admin"`

	// 后台轮询
	PollEnabled     bool          `env:"POLL_ENABLED" envDefault:"true"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"20s"`
	PollBatch       int           `env:"POLL_BATCH" envDefault:"25"`
	PollConcurrency int           `env:"POLL_CONCURRENCY" envDefault:"4"`
	PollMinAge      time.Duration `env:"POLL_MIN_AGE" envDefault:"10s"`

	NotifyWebhookURL string        `env:"NOTIFY_WEBHOOK_URL" envDefault:""`
	NotifyTimeout    time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`

	JWTSecret            string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTIssuer            string `env:"JWT_ISSUER" envDefault:"studio"`
	JWTExpirationMinutes int    `env:"JWT_EXPIRATION_MINUTES" envDefault:"1440"`
	CallbackToken        string `env:"CALLBACK_TOKEN" envDefault:""`

	// 运维账号，仅在首次启动时创建
	SeedOperatorID    string `env:"SEED_OPERATOR_ID" envDefault:""`
	SeedOperatorEmail string `env:"SEED_OPERATOR_EMAIL" envDefault:""`
	SeedOperatorRole  string `env:"SEED_OPERATOR_ROLE" envDefault:"admin"`
}

func ParseConfig() (Config, error) {
	// .env 仅用于本地开发，缺失时忽略
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("no .env file loaded")
	}

	var Conf Config
	err := env.Parse(&Conf)
	if err != nil {
		logrus.WithError(err).Error("env.Parse error")
		return Config{}, err
	}
	Conf.KieBaseURL = strings.TrimRight(strings.TrimSpace(Conf.KieBaseURL), "/")
	logrus.Debugf("%#v\n", Conf)
	return Conf, nil
}
