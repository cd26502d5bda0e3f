package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/notifications"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/pkg/rabbitmq"
	"storefront/pkg/razorpay"
	"storefront/pkg/redisguard"
)

func main() {
	// --- Configuration ---
	viper.SetDefault("APP_PORT", ":8080")
	viper.SetDefault("DATABASE_DSN", "")
	viper.SetDefault("JWT_SECRET", "change_me_in_production")
	viper.SetDefault("RABBITMQ_URL", "")
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("RAZORPAY_KEY_ID", "")
	viper.SetDefault("RAZORPAY_KEY_SECRET", "")
	viper.SetDefault("ADMIN_USERS", "") // comma-separated usernames allowed to update fulfilment status
	viper.AutomaticEnv() // Load environment variables

	appPort := viper.GetString("APP_PORT")

	// --- Repositories ---
	// With a DATABASE_DSN we run on Postgres via GORM; without one the
	// in-memory repositories back a self-contained local instance.
	var (
		productRepo repositories.ProductRepository
		orderRepo   repositories.OrderRepository
		userRepo    repositories.UserRepository
	)
	if dsn := viper.GetString("DATABASE_DSN"); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := db.AutoMigrate(&models.Product{}, &models.User{}, &models.Order{}, &models.OrderItem{}); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		productRepo = repositories.NewGORMProductRepository(db)
		orderRepo = repositories.NewGORMOrderRepository(db)
		userRepo = repositories.NewGORMUserRepository(db)
	} else {
		log.Println("No DATABASE_DSN configured, using in-memory repositories")
		productRepo = repositories.NewMockProductRepository()
		orderRepo = repositories.NewMockOrderRepository()
		userRepo = repositories.NewMockUserRepository()
		seedProducts(productRepo)
	}

	// --- Messaging & notifications ---
	var (
		notifier notifications.Notifier = &notifications.LogNotifier{}
		eventBus services.EventPublisher
		mqClient *rabbitmq.Client
	)
	if url := viper.GetString("RABBITMQ_URL"); url != "" {
		var err error
		mqClient, err = rabbitmq.NewClient(rabbitmq.Config{URL: url})
		if err != nil {
			log.Fatalf("Failed to initialize RabbitMQ client: %v", err)
		}
		defer mqClient.Close()
		notifier = notifications.NewMQNotifier(mqClient)
		eventBus = mqClient

		// Notification worker: drains the queue and delivers messages.
		if err := notifications.RunWorker(mqClient); err != nil {
			log.Printf("Failed to start notification worker: %v", err)
		}
		// Order events consumer; downstream systems (analytics, fulfilment)
		// would hang off this queue.
		if err := mqClient.Consume(rabbitmq.OrderEventsQueue, func(msg amqp.Delivery) error {
			log.Printf("Order event (tag %d): %s", msg.DeliveryTag, string(msg.Body))
			return nil
		}); err != nil {
			log.Printf("Failed to start order event consumer: %v", err)
		}
	} else {
		log.Println("No RABBITMQ_URL configured, notifications go to the log")
	}

	// --- Duplicate-placement guard ---
	var guard services.PlacementGuard
	if url := viper.GetString("REDIS_URL"); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		guard = redisguard.New(redis.NewClient(opts), 10*time.Second)
	}

	// --- Payment gateway ---
	gateway := razorpay.NewClient(razorpay.Config{
		KeyID:     viper.GetString("RAZORPAY_KEY_ID"),
		KeySecret: viper.GetString("RAZORPAY_KEY_SECRET"),
	})

	// --- Services ---
	productService := services.NewProductService(productRepo)
	orderService := services.NewOrderService(orderRepo, productRepo, userRepo, notifier, eventBus, guard)
	paymentService := services.NewPaymentService(orderRepo, productRepo, userRepo, gateway, notifier, eventBus)
	authService := services.NewAuthService(userRepo, viper.GetString("JWT_SECRET"))

	// --- Handlers ---
	productHandler := handlers.NewProductHandler(productService)
	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	authHandler := handlers.NewAuthHandler(authService)

	// --- Fiber App ---
	app := fiber.New()
	app.Use(logger.New()) // Request logger

	apiV1 := app.Group("/api/v1")

	// Authentication routes (public)
	authHandler.RegisterRoutes(apiV1)

	// Protected routes (require JWT authentication)
	protectedRoutes := apiV1.Group("", middleware.AuthRequired(authService))
	adminOnly := middleware.AdminRequired(strings.Split(viper.GetString("ADMIN_USERS"), ","))
	productHandler.RegisterRoutes(protectedRoutes)
	orderHandler.RegisterRoutes(protectedRoutes, adminOnly)
	paymentHandler.RegisterRoutes(protectedRoutes)

	// --- Health Check Endpoint ---
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// --- Start HTTP Server ---
	log.Printf("Starting server on port %s", appPort)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(appPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}

	// RabbitMQ connection close is handled by defer in main
	log.Println("Server gracefully stopped")
}

// seedProducts populates the in-memory product repository with initial data
// for local runs.
func seedProducts(repo repositories.ProductRepository) {
	discount := func(v float64) *float64 { return &v }
	products := []models.Product{
		{ID: "prod-1", Name: "Laptop", Description: "High performance laptop", Price: 1200.00, DiscountPrice: discount(999.00), Stock: 10},
		{ID: "prod-2", Name: "Keyboard", Description: "Mechanical keyboard", Price: 75.00, Stock: 25},
		{ID: "prod-3", Name: "Mouse", Description: "Ergonomic wireless mouse", Price: 25.00, DiscountPrice: discount(19.99), Stock: 50},
	}

	for i := range products {
		if err := repo.Create(&products[i]); err != nil {
			log.Printf("Error seeding product %s: %v", products[i].Name, err)
		} else {
			log.Printf("Seeded product: %s (ID: %s)", products[i].Name, products[i].ID)
		}
	}
}
