package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedStations tracks the number of stations with an open websocket.
	ConnectedStations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "simulator_connected_stations",
		Help: "The number of simulated stations currently connected to the CSMS.",
	})

	// MessagesSent counts outgoing CALL frames, labeled by station and action.
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_messages_sent_total",
		Help: "Total number of CALL frames sent to the CSMS.",
	}, []string{"station", "action"})

	// MessagesReceived counts incoming CALL frames, labeled by station and action.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_messages_received_total",
		Help: "Total number of CALL frames received from the CSMS.",
	}, []string{"station", "action"})

	// MessagesBuffered counts outgoing frames buffered while the socket was down.
	MessagesBuffered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_messages_buffered_total",
		Help: "Total number of outgoing frames buffered while offline.",
	}, []string{"station"})

	// CallErrors counts CALLERROR frames returned to the CSMS, labeled by error code.
	CallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_call_errors_total",
		Help: "Total number of CALLERROR frames returned to the CSMS.",
	}, []string{"station", "code"})

	// TransactionsStarted counts started transactions.
	TransactionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_transactions_started_total",
		Help: "Total number of transactions started.",
	}, []string{"station"})

	// TransactionsStopped counts stopped transactions.
	TransactionsStopped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_transactions_stopped_total",
		Help: "Total number of transactions stopped.",
	}, []string{"station"})

	// QueuedTransactionEvents counts TransactionEvent requests queued while offline.
	QueuedTransactionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_queued_transaction_events_total",
		Help: "Total number of TransactionEvent requests queued while offline.",
	}, []string{"station"})

	// NotifyReportChunks counts NotifyReport fragments emitted per base report.
	NotifyReportChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_notify_report_chunks_total",
		Help: "Total number of NotifyReport fragments sent.",
	}, []string{"station"})
)
