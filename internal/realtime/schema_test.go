package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDestination(t *testing.T) {
	sessionID := uuid.New()
	examID := uuid.New()

	t.Run("student queue", func(t *testing.T) {
		for _, channel := range []string{ChannelWarning, ChannelSuspend, ChannelUpdate} {
			dest, err := ParseDestination(StudentQueue(sessionID, channel))
			require.NoError(t, err, channel)
			assert.Equal(t, DestQueueExam, dest.Kind)
			assert.Equal(t, sessionID, dest.SessionID)
			assert.Equal(t, channel, dest.Channel)
		}
	})

	t.Run("proctor exam topic", func(t *testing.T) {
		dest, err := ParseDestination(ProctorExamTopic(examID, "alerts"))
		require.NoError(t, err)
		assert.Equal(t, DestProctorExam, dest.Kind)
		assert.Equal(t, examID, dest.ExamID)
		assert.Equal(t, "alerts", dest.Channel)
	})

	t.Run("proctor exam topic with nested channel", func(t *testing.T) {
		dest, err := ParseDestination(ProctorExamTopic(examID, "alerts/critical"))
		require.NoError(t, err)
		assert.Equal(t, DestProctorExam, dest.Kind)
		assert.Equal(t, "alerts/critical", dest.Channel)
	})

	t.Run("proctor session topic", func(t *testing.T) {
		dest, err := ParseDestination(ProctorSessionTopic(sessionID))
		require.NoError(t, err)
		assert.Equal(t, DestProctorSession, dest.Kind)
		assert.Equal(t, sessionID, dest.SessionID)
	})

	t.Run("admin topic", func(t *testing.T) {
		dest, err := ParseDestination(AdminTopic("system"))
		require.NoError(t, err)
		assert.Equal(t, DestAdmin, dest.Kind)
		assert.Equal(t, "system", dest.Channel)
	})

	t.Run("app exam send targets", func(t *testing.T) {
		for _, kind := range []string{KindFrame, KindAudio, KindEvent, KindHeartbeat} {
			dest, err := ParseDestination("/app/exam/" + sessionID.String() + "/" + kind)
			require.NoError(t, err, kind)
			assert.Equal(t, DestAppExam, dest.Kind)
			assert.Equal(t, sessionID, dest.SessionID)
			assert.Equal(t, kind, dest.Channel)
		}
	})

	t.Run("rejections", func(t *testing.T) {
		bad := []string{
			"",
			"/",
			"/queue/exam/" + sessionID.String(),              // missing channel
			"/queue/exam/" + sessionID.String() + "/noise",   // unknown channel
			"/queue/exam/not-a-uuid/warning",                 // bad id
			"/app/exam/" + sessionID.String() + "/telemetry", // unknown kind
			"/app/exam/not-a-uuid/frame",
			"/topic/proctor/exam/not-a-uuid/alerts",
			"/topic/proctor/exam/" + examID.String(), // missing channel
			"/topic/proctor/session/not-a-uuid",
			"/topic/something/else",
			"/unrelated/path/entirely",
		}
		for _, raw := range bad {
			_, err := ParseDestination(raw)
			assert.ErrorIs(t, err, ErrBadDestination, "accepted %q", raw)
		}
	})
}
