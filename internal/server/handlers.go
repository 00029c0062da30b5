package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/twiml"

	"github.com/zulandar/afterhours/internal/acks"
	"github.com/zulandar/afterhours/internal/models"
)

const serviceVersion = "2.0.0"

type handlers struct {
	records    Records
	dispatcher Processor
	engine     Sequencer
	acks       Acknowledger
	minter     *acks.TokenMinter
	logger     *log.Logger
}

func (h *handlers) register(router *gin.Engine) {
	router.GET("/health", h.handleHealth)

	hooks := router.Group("/webhooks")
	{
		hooks.POST("/agent/call-ended", h.handleCallEnded)
		hooks.POST("/telephony/status-callback", h.handleStatusCallback)
		hooks.POST("/telephony/sms-status", h.handleSMSStatus)
		hooks.POST("/telephony/sms", h.handleInboundSMS)
		hooks.POST("/telephony/ack-call", h.handleAckCall)
	}

	api := router.Group("/api")
	{
		api.POST("/dispatch/manual", h.handleManualDispatch)
		api.GET("/dispatch/status/:callId", h.handleDispatchStatus)
		api.GET("/ack/:callId/:token", h.handleAckLink)
	}
}

// handleHealth reports liveness plus dispatch metrics. Metric failures fall
// back to zeros; the check itself never fails.
func (h *handlers) handleHealth(c *gin.Context) {
	metrics := gin.H{"activeRetries": 0, "pendingDispatches": 0}
	if h.engine != nil {
		metrics["activeRetries"] = h.engine.ActiveCount()
	}
	if pending, err := h.records.CountCallsByStatus(models.CallStatusDispatching); err == nil {
		metrics["pendingDispatches"] = pending
	} else {
		h.logger.Printf("server: health metrics: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "afterhours-dispatch",
		"version":   serviceVersion,
		"metrics":   metrics,
	})
}

// handleCallEnded is the primary dispatch trigger. The webhook is answered
// immediately; processing happens after the response is on the wire.
func (h *handlers) handleCallEnded(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusOK)
		return
	}
	c.Status(http.StatusOK)

	// The request context dies with the response; processing outlives it.
	go func() {
		res := h.dispatcher.Process(context.Background(), json.RawMessage(raw))
		h.logger.Printf("server: dispatch complete call=%s status=%s", res.CallID, res.Status)
	}()
}

// handleStatusCallback is the fallback trigger: only completed calls are
// dispatched.
func (h *handlers) handleStatusCallback(c *gin.Context) {
	if c.PostForm("CallStatus") != "completed" {
		c.Status(http.StatusOK)
		return
	}

	payload := map[string]string{}
	if err := c.Request.ParseForm(); err == nil {
		for key := range c.Request.PostForm {
			payload[key] = c.Request.PostForm.Get(key)
		}
	}
	raw, err := json.Marshal(payload)
	c.Status(http.StatusOK)
	if err != nil {
		return
	}

	go func() {
		res := h.dispatcher.Process(context.Background(), json.RawMessage(raw))
		h.logger.Printf("server: dispatch complete call=%s status=%s", res.CallID, res.Status)
	}()
}

// handleSMSStatus updates a dispatch event's delivery status from the
// provider's async callback.
func (h *handlers) handleSMSStatus(c *gin.Context) {
	sid := c.PostForm("MessageSid")
	status := c.PostForm("MessageStatus")
	errCode := c.PostForm("ErrorCode")
	c.Status(http.StatusOK)

	if sid == "" || status == "" {
		return
	}
	if err := h.records.UpdateEventDelivery(sid, status, errCode); err != nil {
		h.logger.Printf("server: sms status update for %s: %v", sid, err)
	}
	if status == "failed" || status == "undelivered" {
		h.logger.Printf("server: sms delivery failed for %s (code %s)", sid, errCode)
	}
}

// handleInboundSMS treats a reply from a roster phone as a possible
// acknowledgment of that contact's newest pending dispatch.
func (h *handlers) handleInboundSMS(c *gin.Context) {
	from := c.PostForm("From")
	body := c.PostForm("Body")

	reply := ""
	if from != "" && h.acks != nil {
		call, entry, err := h.records.PendingCallForContact(from)
		if err != nil {
			h.logger.Printf("server: pending call lookup for %s: %v", from, err)
		} else if call != nil && entry != nil {
			acked, err := h.acks.AcknowledgeSMS(c.Request.Context(), call.ID, entry.ID, body)
			if err != nil {
				h.logger.Printf("server: sms acknowledgment for call %s: %v", call.ID, err)
			} else if acked {
				reply = "Thanks. You have the call; please contact the customer."
			}
		}
	}

	var verbs []twiml.Element
	if reply != "" {
		verbs = append(verbs, &twiml.MessagingMessage{Body: reply})
	}
	xml, err := twiml.Messages(verbs)
	if err != nil {
		c.Status(http.StatusOK)
		return
	}
	c.Data(http.StatusOK, "text/xml", []byte(xml))
}

// handleAckCall serves the voice acknowledgment prompt and handles the
// keypress it gathers.
func (h *handlers) handleAckCall(c *gin.Context) {
	callID := c.Query("callId")
	contactID := c.Query("contactId")
	digits := c.PostForm("Digits")

	var verbs []twiml.Element
	if digits == "1" && callID != "" && h.acks != nil {
		if err := h.acks.Acknowledge(c.Request.Context(), callID, contactID, acks.ChannelCall); err != nil {
			h.logger.Printf("server: call acknowledgment for %s: %v", callID, err)
			verbs = append(verbs, &twiml.VoiceSay{
				Message: "There was an error processing your acknowledgment. Please contact dispatch.",
			})
		} else {
			verbs = append(verbs, &twiml.VoiceSay{
				Message: "Thank you. You have accepted the dispatch. Please contact the customer.",
			})
		}
	} else {
		gather := &twiml.VoiceGather{
			NumDigits: "1",
			Timeout:   "10",
			Action:    c.Request.URL.String(),
			InnerElements: []twiml.Element{
				&twiml.VoiceSay{Message: "You have a new after-hours dispatch. Press 1 to accept, or hang up to decline."},
			},
		}
		verbs = append(verbs, gather, &twiml.VoiceSay{Message: "We did not receive your response. Goodbye."})
	}

	xml, err := twiml.Voice(verbs)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/xml", []byte(xml))
}

// handleAckLink verifies a secure link token and records the acknowledgment.
func (h *handlers) handleAckLink(c *gin.Context) {
	callID := c.Param("callId")
	token := c.Param("token")

	if h.minter == nil || h.acks == nil {
		c.String(http.StatusGone, "Link acknowledgment is not enabled.")
		return
	}
	contactID, err := h.minter.Verify(token, callID)
	if err != nil {
		h.logger.Printf("server: ack link rejected for call %s: %v", callID, err)
		c.String(http.StatusForbidden, "This acknowledgment link is invalid or expired.")
		return
	}
	if err := h.acks.Acknowledge(c.Request.Context(), callID, contactID, acks.ChannelLink); err != nil {
		h.logger.Printf("server: link acknowledgment for call %s: %v", callID, err)
		c.String(http.StatusInternalServerError, "Could not record the acknowledgment. Please contact dispatch.")
		return
	}
	c.String(http.StatusOK, "You have accepted the dispatch. Please contact the customer.")
}

// handleManualDispatch runs the pipeline synchronously for an operator.
func (h *handlers) handleManualDispatch(c *gin.Context) {
	var req struct {
		CallData json.RawMessage `json:"callData"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.CallData) == 0 || string(req.CallData) == "null" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "callData is required"})
		return
	}

	res := h.dispatcher.Process(c.Request.Context(), req.CallData)
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

// handleDispatchStatus returns a call's status and its attempt history.
func (h *handlers) handleDispatchStatus(c *gin.Context) {
	callID := c.Param("callId")

	call, err := h.records.GetCall(callID)
	if err != nil || call == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	events, err := h.records.EventsForCall(callID)
	if err != nil {
		h.logger.Printf("server: events for call %s: %v", callID, err)
	}

	attempts := make([]gin.H, 0, len(events))
	for _, evt := range events {
		attempts = append(attempts, gin.H{
			"attempt": evt.AttemptNumber,
			"channel": evt.Channel,
			"result":  evt.Result,
			"sentAt":  evt.SentAt.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"callId":   call.ID,
		"status":   call.Status,
		"urgency":  call.EmergencyLevel,
		"ackedBy":  call.AckedBy,
		"attempts": attempts,
	})
}
