package main

import (
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ulms/core"
	"github.com/trezcool/ulms/core/exam"
	"github.com/trezcool/ulms/services/examapi"
	logsvc "github.com/trezcool/ulms/services/logger"
	"github.com/trezcool/ulms/storage/inmem"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(conf, "CLI : "), conf)
	logger.Enable(false)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	exam.InitValidators(validate, translator)

	var provider exam.Provider
	if conf.Exams.Mock || conf.Exams.BaseURL == "" {
		provider = inmem.NewStore()
	} else {
		provider = examapi.New(conf.Exams.BaseURL, conf.Exams.Token, nil)
	}

	// start CLI
	cli := commandLine{
		conf:    conf,
		examSvc: exam.NewService(provider, validate, translator, logger),
		in:      os.Stdin,
		out:     os.Stdout,
		errOut:  os.Stderr,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("error: "+err.Error(), err)
		}
		os.Exit(1)
	}
}
