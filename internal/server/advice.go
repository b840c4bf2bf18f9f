package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/capx-fi/finvest-miniapp/pkg/advisor"
)

const maxUploadBytes = 10 << 20 // 10 MiB

type adviceResponse struct {
	Advice      string               `json:"advice,omitempty"`
	RiskProfile *advisor.RiskProfile `json:"riskProfile,omitempty"`
	Error       string               `json:"error,omitempty"`
}

func writeAdviceError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, adviceResponse{Error: msg})
}

func (s *Server) handleFinancialAdvice(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)
	if s.advisor == nil {
		writeAdviceError(w, http.StatusServiceUnavailable, "Financial advice is not configured.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.metrics.adviceOutcomes.WithLabelValues("bad_request").Inc()
		writeAdviceError(w, http.StatusBadRequest, "Invalid form data.")
		return
	}

	score, err := strconv.Atoi(strings.TrimSpace(r.FormValue("cibilScore")))
	if err != nil || score < advisor.MinCreditScore || score > advisor.MaxCreditScore {
		s.metrics.adviceOutcomes.WithLabelValues("bad_request").Inc()
		writeAdviceError(w, http.StatusBadRequest, "Please enter a valid CIBIL score between 300 and 900.")
		return
	}
	goals := r.FormValue("financialGoals")
	if strings.TrimSpace(goals) == "" {
		s.metrics.adviceOutcomes.WithLabelValues("bad_request").Inc()
		writeAdviceError(w, http.StatusBadRequest, "Please enter your financial goals.")
		return
	}
	file, _, err := r.FormFile("transactionFile")
	if err != nil {
		s.metrics.adviceOutcomes.WithLabelValues("bad_request").Inc()
		writeAdviceError(w, http.StatusBadRequest, "Please upload a transaction file.")
		return
	}
	defer file.Close()

	txs, err := advisor.ParseTransactions(file)
	if err != nil {
		s.metrics.adviceOutcomes.WithLabelValues("invalid_csv").Inc()
		log.Infow("CSV processing error", "error", err)
		writeAdviceError(w, http.StatusBadRequest, err.Error())
		return
	}

	advice, err := s.advisor.Advise(r.Context(), advisor.Request{
		CreditScore:  score,
		Goals:        goals,
		Transactions: txs,
	})
	if err != nil {
		var verr *advisor.ValidationError
		if errors.As(err, &verr) {
			s.metrics.adviceOutcomes.WithLabelValues("bad_request").Inc()
			writeAdviceError(w, http.StatusBadRequest, verr.Error())
			return
		}
		s.metrics.adviceOutcomes.WithLabelValues("error").Inc()
		log.Errorw("Failed to generate advice", "error", err)
		writeAdviceError(w, http.StatusInternalServerError, "An error occurred while processing your request.")
		return
	}

	s.metrics.adviceOutcomes.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, adviceResponse{Advice: advice.Text, RiskProfile: &advice.RiskProfile})
}
