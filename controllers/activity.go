package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/meridian-courier/device-trust/audit"
	"github.com/meridian-courier/device-trust/models"
	"github.com/meridian-courier/device-trust/utils"
	"github.com/meridian-courier/device-trust/validators"
)

type ActivityController struct {
	recorder *audit.Recorder
	log      *logrus.Logger
}

func NewActivityController(rec *audit.Recorder, log *logrus.Logger) *ActivityController {
	return &ActivityController{recorder: rec, log: log}
}

// Append enqueues an activity entry. Always 202: the write happens (or
// fails) after this handler returns, and the caller is not told either way.
func (ac *ActivityController) Append(c *gin.Context) {
	acct, ok := accountFrom(c)
	if !ok {
		sendResponse(c, http.StatusUnauthorized, "Authentication required", nil, "No account in context")
		return
	}
	req, ok := validators.ValidateAppendActivityRequest(c)
	if !ok {
		return
	}

	ac.recorder.Append(models.ActivityLog{
		AccountID:     acct.ID,
		DeviceName:    req.DeviceName,
		Action:        req.Action,
		Details:       req.Details,
		SourceAddress: c.ClientIP(),
		Location:      utils.GetIPLocation(c.ClientIP()),
	})
	sendResponse(c, http.StatusAccepted, "Activity recorded", nil, nil)
}

// List returns recent activity. Regular accounts see their own trail;
// elevated roles may pass scope=all.
func (ac *ActivityController) List(c *gin.Context) {
	acct, ok := accountFrom(c)
	if !ok {
		sendResponse(c, http.StatusUnauthorized, "Authentication required", nil, "No account in context")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	scope := acct.ID
	if c.Query("scope") == "all" && acct.Elevated() {
		scope = 0
	}

	entries := ac.recorder.List(c.Request.Context(), limit, scope)
	sendResponse(c, http.StatusOK, "Activity retrieved", map[string]interface{}{
		"entries": entries,
	}, nil)
}
