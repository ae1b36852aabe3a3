package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	authsvc "house-marketplace/internal/application/auth"
	emailsvc "house-marketplace/internal/application/emails"
	"house-marketplace/internal/application/geocoding"
	healthsvc "house-marketplace/internal/application/health"
	listsvc "house-marketplace/internal/application/listings"
	uploadsvc "house-marketplace/internal/application/uploads"
	"house-marketplace/internal/config"
	"house-marketplace/internal/infrastructure/database"
	"house-marketplace/internal/infrastructure/mongodb"
	authhandler "house-marketplace/internal/interfaces/handlers/auth"
	healthhandler "house-marketplace/internal/interfaces/handlers/health"
	imagehandler "house-marketplace/internal/interfaces/handlers/images"
	listhandler "house-marketplace/internal/interfaces/handlers/listings"
	uploadhandler "house-marketplace/internal/interfaces/handlers/uploads"
	"house-marketplace/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

const connectTimeout = 10 * time.Second

// Deps are the connections opened by CreateApp. Any of them may be nil when not configured.
type Deps struct {
	DB    *gorm.DB
	Rdb   *redis.Client
	Mongo *mongo.Client
}

func gormPinger(db *gorm.DB) healthsvc.Pinger {
	return healthsvc.PingFunc(func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
}

func mongoPinger(client *mongo.Client) healthsvc.Pinger {
	return healthsvc.PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	})
}

// CreateApp wires stores, services and routes from cfg.
func CreateApp(cfg *config.Config) (*fiber.App, *Deps, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
		BodyLimit:               32 * 1024 * 1024,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}
	sessionHandler, rdb, err := middleware.Session(sessionCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	deps := &Deps{Rdb: rdb}

	app.Use(middleware.Tracing())
	app.Use(sessionHandler)
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.RouteLogger())

	collector := &healthsvc.Collector{
		Rdb:      rdb,
		Required: map[string]healthsvc.Pinger{},
		External: map[string]string{},
	}

	if cfg.DatabaseURL != "" {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		deps.DB = db
		collector.Required["database"] = gormPinger(db)
	}

	if cfg.DocumentStore == config.DocumentStoreMongo || cfg.BlobStore == config.BlobStoreGridFS {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		cancel()
		if err != nil {
			return nil, nil, fmt.Errorf("mongo: %w", err)
		}
		deps.Mongo = client
		collector.Required["documents"] = mongoPinger(client)
	}

	hh := &healthhandler.Handlers{Rdb: rdb, Collector: collector, HealthAdminKey: cfg.HealthAdminKey}
	hg := app.Group("/api/v1/health")
	hg.Get("/json", hh.JSON)
	hg.Get("/errors", hh.Errors)
	hg.Post("/reset", hh.Reset)

	// Auth
	var userFinder authsvc.UserFinder
	var registrar authhandler.Registrar
	if deps.DB != nil {
		var mailer emailsvc.Sender
		if cfg.SendinblueAPIKey != "" {
			mailer = &emailsvc.BrevoClient{APIKey: cfg.SendinblueAPIKey, MailFrom: cfg.MailFrom}
		}
		userFinder = &authsvc.GormUserFinder{DB: deps.DB}
		registrar = &authsvc.Service{DB: deps.DB, Mailer: mailer}
	}
	ah := &authhandler.Handlers{UserFinder: userFinder, Registrar: registrar, Rdb: rdb, Config: sessionCfg}
	ag := app.Group("/api/v1/auth")
	ag.Post("/sign-up", ah.SignUp)
	ag.Post("/login", ah.Login)
	ag.Get("/me", ah.Me)
	ag.Delete("/logout", ah.Logout)

	// Stores
	var store listsvc.Store
	switch cfg.DocumentStore {
	case config.DocumentStoreMongo:
		ms := mongodb.NewListingStore(deps.Mongo, cfg.MongoDatabase)
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		err := ms.EnsureIndexes(ctx)
		cancel()
		if err != nil {
			return nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		store = ms
	default:
		if deps.DB != nil {
			store = &database.ListingStore{DB: deps.DB}
		}
	}

	var blobs uploadsvc.BlobStore
	var signer *uploadsvc.Service
	switch cfg.BlobStore {
	case config.BlobStoreGridFS:
		gfs := mongodb.NewGridFSStore(deps.Mongo, cfg.MongoDatabase, cfg.PublicBaseURL)
		blobs = gfs
		ih := &imagehandler.Handlers{Source: gfs}
		app.Get(mongodb.ImagesPath+"*", ih.Get)
	default:
		sc := &uploadsvc.HTTPClient{BaseURL: cfg.SupabaseURL, SecretKey: cfg.SupabaseSecretKey}
		blobs = &uploadsvc.SupabaseStore{Client: sc, SupabaseURL: cfg.SupabaseURL, Bucket: cfg.StorageBucket}
		signer = &uploadsvc.Service{Client: sc, SupabaseURL: cfg.SupabaseURL, Bucket: cfg.StorageBucket}
		if cfg.SupabaseURL != "" {
			collector.External["storage"] = cfg.SupabaseURL
		}
	}

	uph := &uploadhandler.Handlers{Service: signer}
	app.Post("/api/v1/uploads/listing-image", middleware.RequireAuth(), uph.ListingImage)

	if store == nil {
		log.Warn().Str("document_store", cfg.DocumentStore).Msg("router: no document store configured, listing routes disabled")
		return app, deps, nil
	}

	var geocoder geocoding.Geocoder
	if cfg.GeocodingEnabled {
		geocoder = &geocoding.CachedGeocoder{
			Next: &geocoding.HTTPClient{BaseURL: cfg.GeocodeBaseURL, APIKey: cfg.GeocodeAPIKey},
			Rdb:  rdb,
			TTL:  cfg.GeocodeCacheTTL,
		}
	}

	ls := &listsvc.Service{
		Store:            store,
		Blobs:            blobs,
		Geocoder:         geocoder,
		GeocodingEnabled: cfg.GeocodingEnabled,
		Guard:            &listsvc.RedisGuard{Rdb: rdb},
	}
	lh := &listhandler.Handlers{Service: ls}
	lg := app.Group("/api/v1/listings")
	lg.Get("/category/:type", lh.Category)
	lg.Get("/offers", lh.Offers)
	lg.Get("/nearby", lh.Nearby)
	lg.Get("/mine", middleware.RequireAuth(), lh.Mine)
	lg.Post("/", middleware.RequireAuth(), lh.Create)
	lg.Get("/:id", lh.Get)
	lg.Get("/:id/edit", middleware.RequireAuth(), lh.EditForm)
	lg.Get("/:id/events", middleware.RequireAuth(), lh.Events)
	lg.Put("/:id", middleware.RequireAuth(), lh.Update)
	lg.Delete("/:id", middleware.RequireAuth(), lh.Delete)

	return app, deps, nil
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
