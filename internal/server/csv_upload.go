package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	csvuploaddomain "github.com/smallbiznis/licensor/internal/csvupload/domain"
	obscontext "github.com/smallbiznis/licensor/internal/observability/context"
)

// UploadCSV accepts a CSV from a licensed domain and queues it for delivery to
// the partner SFTP server.
func (s *Server) UploadCSV(c *gin.Context) {
	guard, ok := guardFromContext(c)
	if !ok {
		abortLicenseError(c, csvuploaddomain.ErrGuardRequired)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		abortLicenseError(c, fieldErrors{"file": "The file field is required."})
		return
	}

	maxBytes := s.policy.Get().UploadMaxBytes
	if maxBytes > 0 && header.Size > maxBytes {
		abortLicenseError(c, csvuploaddomain.ErrFileTooLarge)
		return
	}

	file, err := header.Open()
	if err != nil {
		abortLicenseError(c, err)
		return
	}
	defer file.Close()

	reader := io.Reader(file)
	if maxBytes > 0 {
		// one extra byte lets the service see an oversized stream
		reader = io.LimitReader(file, maxBytes+1)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		abortLicenseError(c, err)
		return
	}

	job, err := s.uploadSvc.Enqueue(c.Request.Context(), csvuploaddomain.EnqueueRequest{
		Guard:    guard,
		Filename: header.Filename,
		Content:  content,
	})
	if err != nil {
		abortLicenseError(c, err)
		return
	}

	c.Set(obscontext.GinKeyLicenseOutcome, "upload_queued")
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"upload":  job,
	})
}

func (s *Server) GetUpload(c *gin.Context) {
	guard, ok := guardFromContext(c)
	if !ok {
		abortLicenseError(c, csvuploaddomain.ErrGuardRequired)
		return
	}

	job, err := s.uploadSvc.Get(c.Request.Context(), guard.License.ID, c.Param("id"))
	if err != nil {
		abortLicenseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"upload":  job,
	})
}
