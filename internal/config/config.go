package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Document and blob store backends.
const (
	DocumentStorePostgres = "postgres"
	DocumentStoreMongo    = "mongo"
	BlobStoreSupabase     = "supabase"
	BlobStoreGridFS       = "gridfs"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env           string
	Port          string
	SessionSecret string
	DatabaseURL   string
	RedisURL      string

	DocumentStore string // DOCUMENT_STORE: postgres (default) or mongo
	MongoURI      string
	MongoDatabase string

	BlobStore         string // BLOB_STORE: supabase (default) or gridfs
	SupabaseURL       string // used for storage uploads, sign URLs and public URLs
	SupabaseSecretKey string // must be service_role key (Dashboard → API), not anon key
	StorageBucket     string
	PublicBaseURL     string // base of GridFS image URLs, e.g. https://api.example.com

	GeocodingEnabled bool
	GeocodeAPIKey    string
	GeocodeBaseURL   string
	GeocodeCacheTTL  time.Duration

	FrontendURLEndsWith string
	DevPassword         string
	AllowCrossSiteDev   bool
	HealthAdminKey      string
	SendinblueAPIKey    string // SENDINBLUE_API_KEY for welcome emails (Brevo)
	MailFrom            string // MAIL_FROM sender email
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DOCUMENT_STORE", DocumentStorePostgres)
	viper.SetDefault("BLOB_STORE", BlobStoreSupabase)
	viper.SetDefault("MONGO_DATABASE", "house_marketplace")
	viper.SetDefault("STORAGE_BUCKET", "listings")
	viper.SetDefault("GEOCODING_ENABLED", true)
	viper.SetDefault("GEOCODE_CACHE_TTL", "24h")
	viper.SetDefault("MAIL_FROM", "noreply@house-marketplace.app")

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	return &Config{
		Env:                 env,
		Port:                viper.GetString("PORT"),
		SessionSecret:       viper.GetString("SESSION_SECRET"),
		DatabaseURL:         dbURL,
		RedisURL:            viper.GetString("REDIS_URL"),
		DocumentStore:       strings.ToLower(viper.GetString("DOCUMENT_STORE")),
		MongoURI:            viper.GetString("MONGO_URI"),
		MongoDatabase:       viper.GetString("MONGO_DATABASE"),
		BlobStore:           strings.ToLower(viper.GetString("BLOB_STORE")),
		SupabaseURL:         viper.GetString("SUPABASE_URL"),
		SupabaseSecretKey:   viper.GetString("SUPABASE_SECRET_KEY"),
		StorageBucket:       viper.GetString("STORAGE_BUCKET"),
		PublicBaseURL:       strings.TrimRight(viper.GetString("PUBLIC_BASE_URL"), "/"),
		GeocodingEnabled:    viper.GetBool("GEOCODING_ENABLED"),
		GeocodeAPIKey:       viper.GetString("GEOCODE_API_KEY"),
		GeocodeBaseURL:      viper.GetString("GEOCODE_BASE_URL"),
		GeocodeCacheTTL:     viper.GetDuration("GEOCODE_CACHE_TTL"),
		FrontendURLEndsWith: viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:   strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:      viper.GetString("HEALTH_ADMIN_KEY"),
		SendinblueAPIKey:    viper.GetString("SENDINBLUE_API_KEY"),
		MailFrom:            viper.GetString("MAIL_FROM"),
	}, nil
}
