package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jawher/mow.cli"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/scott-ace-newton/translator-chat/auth"
	"github.com/scott-ace-newton/translator-chat/chat"
	"github.com/scott-ace-newton/translator-chat/languages"
	"github.com/scott-ace-newton/translator-chat/notification"
	"github.com/scott-ace-newton/translator-chat/persistence"
	"github.com/scott-ace-newton/translator-chat/ratelimit"
	"github.com/scott-ace-newton/translator-chat/translation"
	"github.com/scott-ace-newton/translator-chat/users"
)

const (
	appName        = "translator-chat"
	appDescription = "Translator with speech output and a two-party chat backed by whole-document JSON storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Debug("no .env file loaded")
	}

	app := cli.App(appName, appDescription)

	port := app.String(cli.StringOpt{
		Name:   "port",
		Value:  "8080",
		Desc:   "Port to listen on",
		EnvVar: "APP_PORT",
	})
	logLevel := app.String(cli.StringOpt{
		Name:   "logLevel",
		Value:  "info",
		Desc:   "App log level",
		EnvVar: "LOG_LEVEL",
	})
	storageBackend := app.String(cli.StringOpt{
		Name:   "storageBackend",
		Value:  "file",
		Desc:   "Where documents are kept: file or mysql",
		EnvVar: "STORAGE_BACKEND",
	})
	dataDir := app.String(cli.StringOpt{
		Name:   "dataDir",
		Value:  "data",
		Desc:   "Directory holding accounts.json and conversations.json",
		EnvVar: "DATA_DIR",
	})
	sqlCredentials := app.String(cli.StringOpt{
		Name:      "sqlCredentials",
		Desc:      "Username and password to connect to db, should be in 'user:pass' format",
		EnvVar:    "SQL_CREDENTIALS",
		HideValue: true,
	})
	sqlDSN := app.String(cli.StringOpt{
		Name:      "sqlDSN",
		Desc:      "DSN to connect to the DB e.g. user:pass@host/schema",
		EnvVar:    "SQL_DSN",
		HideValue: true,
	})
	adminUsers := app.Strings(cli.StringsOpt{
		Name:   "adminUsers",
		Desc:   "Usernames that register with the admin role",
		EnvVar: "ADMIN_USERS",
	})
	sessionSecret := app.String(cli.StringOpt{
		Name:      "sessionSecret",
		Desc:      "Secret session tokens are signed with",
		EnvVar:    "SESSION_SECRET",
		HideValue: true,
	})
	sessionTTL := app.Int(cli.IntOpt{
		Name:   "sessionTTLMinutes",
		Value:  30,
		Desc:   "Minutes a login stays valid",
		EnvVar: "SESSION_TTL_MINUTES",
	})
	historyLimit := app.Int(cli.IntOpt{
		Name:   "historyLimit",
		Value:  persistence.DefaultHistoryLimit,
		Desc:   "Number of recent chat messages returned by default",
		EnvVar: "HISTORY_LIMIT",
	})
	provider := app.String(cli.StringOpt{
		Name:   "translatorProvider",
		Value:  translation.ProviderOpenAI,
		Desc:   "Translation provider: openai or yandex",
		EnvVar: "TRANSLATOR_PROVIDER",
	})
	openAIKey := app.String(cli.StringOpt{
		Name:      "openAIKey",
		Desc:      "API key of the OpenAI compatible API",
		EnvVar:    "OPENAI_API_KEY",
		HideValue: true,
	})
	openAIBaseURL := app.String(cli.StringOpt{
		Name:   "openAIBaseURL",
		Desc:   "Base URL of the OpenAI compatible API",
		EnvVar: "OPENAI_BASE_URL",
	})
	openAIModel := app.String(cli.StringOpt{
		Name:   "openAIModel",
		Value:  "gpt-4o-mini",
		Desc:   "Chat model used to translate and detect languages",
		EnvVar: "OPENAI_MODEL",
	})
	ttsModel := app.String(cli.StringOpt{
		Name:   "ttsModel",
		Value:  "tts-1",
		Desc:   "Speech model",
		EnvVar: "TTS_MODEL",
	})
	ttsVoice := app.String(cli.StringOpt{
		Name:   "ttsVoice",
		Value:  "alloy",
		Desc:   "Speech voice",
		EnvVar: "TTS_VOICE",
	})
	yandexToken := app.String(cli.StringOpt{
		Name:      "yandexOAuthToken",
		Desc:      "Yandex OAuth token",
		EnvVar:    "YANDEX_OAUTH_TOKEN",
		HideValue: true,
	})
	yandexFolder := app.String(cli.StringOpt{
		Name:   "yandexFolderID",
		Desc:   "Yandex cloud folder ID",
		EnvVar: "YANDEX_FOLDER_ID",
	})
	collaboratorTimeout := app.Int(cli.IntOpt{
		Name:   "collaboratorTimeoutSeconds",
		Value:  30,
		Desc:   "Timeout of each translation or speech call",
		EnvVar: "COLLABORATOR_TIMEOUT_SECONDS",
	})
	loginRate := app.Int(cli.IntOpt{
		Name:   "loginRatePerMinute",
		Value:  10,
		Desc:   "Login and register attempts allowed per client IP per minute",
		EnvVar: "LOGIN_RATE_PER_MINUTE",
	})
	trustedProxies := app.Strings(cli.StringsOpt{
		Name:   "trustedProxies",
		Desc:   "Proxy addresses or CIDR ranges whose X-Forwarded-For header is used to find the client address",
		EnvVar: "TRUSTED_PROXIES",
	})

	app.Action = func() {
		logLvl, err := log.ParseLevel(*logLevel)
		if err != nil {
			log.WithField("logLevel", *logLevel).WithError(err).Error("could not parse log level. Using INFO instead.")
			logLvl = log.InfoLevel
		}
		log.SetLevel(logLvl)
		log.Infof("[Startup] %s is starting on port %s...", appName, *port)

		if *sessionSecret == "" {
			log.Fatal("session secret not set")
			return
		}

		var backend persistence.Backend
		switch *storageBackend {
		case "file":
			backend, err = persistence.NewFileBackend(*dataDir)
		case "mysql":
			if *sqlDSN == "" || *sqlCredentials == "" {
				log.Fatal("SQL connection string or credentials not set")
				return
			}
			backend, err = persistence.NewSQLBackend(*sqlDSN, *sqlCredentials)
		default:
			log.WithField("storageBackend", *storageBackend).Fatal("unknown storage backend")
			return
		}
		if err != nil {
			log.WithError(err).Fatal("could not open record store")
			return
		}

		store := persistence.NewRecordStore(backend, auth.NewArgon2Hasher(nil), persistence.WithAdmins(*adminUsers...))
		defer func() {
			if err := store.Close(); err != nil {
				log.WithError(err).Error("could not close record store")
			}
		}()

		translator, err := translation.NewTranslator(translation.Config{
			Provider:         *provider,
			OpenAIAPIKey:     *openAIKey,
			OpenAIBaseURL:    *openAIBaseURL,
			OpenAIModel:      *openAIModel,
			SpeechModel:      *ttsModel,
			SpeechVoice:      *ttsVoice,
			YandexOAuthToken: *yandexToken,
			YandexFolderID:   *yandexFolder,
		})
		if err != nil {
			log.WithError(err).Fatal("could not create translator")
			return
		}
		var synthesizer translation.Synthesizer
		if *openAIKey != "" {
			synthesizer = translation.NewOpenAI(*openAIKey, *openAIBaseURL, *openAIModel, *ttsModel, *ttsVoice)
		} else {
			log.Warn("no OpenAI key set, translations will be text only")
		}
		pipeline := translation.NewPipeline(translator, synthesizer, languages.Default(),
			time.Duration(*collaboratorTimeout)*time.Second)

		sessions := auth.NewManager(*sessionSecret, time.Duration(*sessionTTL)*time.Minute)
		events := notification.NewEventClient(nil)
		limiter, err := ratelimit.NewLimiter(ratelimit.Config{
			Attempts:       *loginRate,
			Window:         time.Minute,
			IdleTTL:        10 * time.Minute,
			SweepInterval:  time.Minute,
			TrustedProxies: *trustedProxies,
		})
		if err != nil {
			log.WithError(err).Fatal("could not create login rate limiter")
			return
		}
		defer limiter.Stop()

		r := mux.NewRouter()
		r.Use(sessions.Middleware)

		uh := users.NewUsersHandler(store, sessions, events, limiter.Middleware)
		uh.RegisterHandlers(r)
		ch := chat.NewChatHandler(store, events, *historyLimit)
		ch.RegisterHandlers(r)
		th := translation.NewTranslateHandler(pipeline)
		th.RegisterHandlers(r)

		accessLog := log.StandardLogger().Writer()
		defer accessLog.Close()

		server := &http.Server{
			Addr:              ":" + *port,
			Handler:           handlers.CombinedLoggingHandler(accessLog, r),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      time.Duration(*collaboratorTimeout)*time.Second*3 + 15*time.Second,
			IdleTimeout:       30 * time.Second,
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			log.Infof("Listening on port %v", *port)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("HTTP server got shut down error: %v", err)
			}
			sig <- os.Interrupt
		}()

		<-sig
		log.Info("shutting down HTTP server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.WithError(err).Error("HTTP server shutdown failed")
		}
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("app exited with error")
	}
}
