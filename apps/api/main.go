package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"image"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/ulms/apps/api/echo"
	"github.com/trezcool/ulms/core"
	"github.com/trezcool/ulms/core/exam"
	"github.com/trezcool/ulms/core/proctor"
	audiosvc "github.com/trezcool/ulms/services/audio"
	camerasvc "github.com/trezcool/ulms/services/camera"
	emailsvc "github.com/trezcool/ulms/services/email"
	"github.com/trezcool/ulms/services/examapi"
	logsvc "github.com/trezcool/ulms/services/logger"
	reportsvc "github.com/trezcool/ulms/services/reporting"
	wstransport "github.com/trezcool/ulms/services/transport/websocket"
	"github.com/trezcool/ulms/storage/inmem"
)

const submitTimeout = 15 * time.Second

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	examID := flag.Int("exam", conf.Exams.ID, "id of the exam to take")
	flag.Parse()

	// set up loggers
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(conf, "PROCTOR : "), conf)
	logger.Enable(!conf.Debug)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	exam.InitValidators(validate, translator)

	if err := core.ValidateConfig(conf, validate, translator); err != nil {
		logger.Fatal(fmt.Sprintf("invalid config: %v", err), err)
	}

	student := exam.Student{ID: conf.Student.ID, Name: conf.Student.Name, Email: conf.Student.Email}
	examRef := strconv.Itoa(*examID)

	// set up services
	var provider exam.Provider
	if conf.Exams.Mock || conf.Exams.BaseURL == "" {
		provider = inmem.NewStore()
	} else {
		provider = examapi.New(conf.Exams.BaseURL, conf.Exams.Token, nil)
	}
	examSvc := exam.NewService(provider, validate, translator, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build), student)
	defer logger.Info("Application stopped", student)

	// proctoring failures degrade, they never block the exam
	reference, err := proctor.LoadReferenceFile(conf.Capture.ReferenceImage)
	if err != nil {
		logger.Warn(fmt.Sprintf("reference image unavailable, no frame will be sent: %v", err), err, student)
	}

	camera, err := camerasvc.New(conf.Capture.Device, conf.Capture.FramesDir)
	if err != nil {
		logger.Warn(fmt.Sprintf("camera unavailable (drivers: %v): %v", camerasvc.Drivers(), err), err, student)
		camera = camerasvc.DeniedCamera{}
	}

	channelOpts := wstransport.Options{
		URL:    conf.Verifier.URL,
		Token:  conf.Verifier.Token,
		Logger: logger,
	}
	if secret := conf.Verifier.SecretKey; secret != "" {
		channelOpts.TokenFunc = func() (string, error) {
			return wstransport.NewToken(secret, student.ID, examRef, conf.AppName, conf.Verifier.TokenTTL, time.Now())
		}
	}
	channel := wstransport.New(channelOpts)

	capture := proctor.NewCaptureLoop(camera, channel, reference, proctor.CaptureConfig{
		MinDelay:    conf.Capture.MinDelay,
		Jitter:      conf.Capture.Jitter,
		PreviewSize: conf.Capture.PreviewSize,
		Logger:      logger,
		OnReady:     func() { logger.Info("camera ready", student) },
	})

	aggregator := proctor.NewAggregator(proctor.AggregatorConfig{Dwell: conf.Alerts.Dwell, Logger: logger})
	closeNotifiers := registerNotifiers(conf, logger, aggregator, capture, student)

	interpreter := proctor.NewInterpreter(proctor.Identity{StudentID: student.ID, StudentName: student.Name, ExamID: examRef}, nil)
	proctorSess := proctor.NewSession(channel, capture, interpreter, aggregator, logger)

	examSess, err := examSvc.NewSession(
		context.Background(),
		*examID,
		exam.OnSubmit(func(res exam.Result) {
			proctorSess.Close()

			ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
			defer cancel()
			_ = examSvc.Submit(ctx, student, res)
		}),
	)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading exam: %v", err), err, student)
	}
	if err = examSess.Start(); err != nil {
		logger.Fatal(fmt.Sprintf("starting exam: %v", err), err, student)
	}
	defer examSess.Close()

	proctorSess.Start(context.Background())
	defer func() {
		proctorSess.Close()
		aggregator.Wait()
		closeNotifiers()
	}()

	conf.Watch(logger, func(c *core.Config) {
		logger.Enable(!c.Debug)
	})

	// =========================================================================
	// Start Debug Service
	//
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.Publish("proctoring", expvar.Func(func() interface{} { return proctorSess.Status() }))
	expvar.Publish("exam", expvar.Func(func() interface{} { return examSess.Snapshot() }))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Validate:   validate,
			Translator: translator,
			Exam:       examSess,
			Proctor:    proctorSess,
			Student:    student,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// registerNotifiers plugs every configured alert side effect into the aggregator.
// The returned func releases whatever they hold.
func registerNotifiers(
	conf *core.Config,
	logger core.Logger,
	aggregator *proctor.Aggregator,
	capture *proctor.CaptureLoop,
	student exam.Student,
) func() {
	if conf.Reporting.BaseURL != "" {
		aggregator.AddNotifier("report", reportsvc.NewHTTPReporter(conf.Reporting.BaseURL, nil, nil))
	}

	player := audiosvc.NewPlayer(audiosvc.DefaultCommandSink(), audiosvc.DefaultSampleRate)
	aggregator.AddNotifier("cue", proctor.NewCueNotifier(player, conf.AudioEnabled))

	if conf.Escalation.To != "" {
		to, err := mail.ParseAddressList(conf.Escalation.To)
		if err != nil {
			logger.Warn(fmt.Sprintf("escalation disabled: %v", err), err, student)
		} else {
			var mailSvc core.EmailService
			if conf.Debug {
				mailSvc = emailsvc.NewConsoleService(conf, logger)
			} else {
				mailSvc = emailsvc.NewSendgridService(conf, logger)
			}
			aggregator.AddNotifier("escalation", emailsvc.NewEscalator(mailSvc, addresses(to), func() (image.Image, bool) {
				preview, ok := capture.Preview()
				if !ok {
					return nil, false
				}
				return preview, true
			}))
		}
	}

	if broker := conf.Reporting.MQTTBroker; broker != "" {
		feed := reportsvc.NewMQTTFeed(broker, "ulms-"+student.ID, conf.Reporting.MQTTTopic, logger)
		if err := feed.Connect(); err != nil {
			logger.Warn(fmt.Sprintf("alert feed unavailable: %v", err), err, student)
		}
		aggregator.AddNotifier("feed", feed)
		return feed.Disconnect
	}
	return func() {}
}

func addresses(list []*mail.Address) []mail.Address {
	out := make([]mail.Address, 0, len(list))
	for _, a := range list {
		out = append(out, *a)
	}
	return out
}
