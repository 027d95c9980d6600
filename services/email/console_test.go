package emailsvc

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/podesk/core"
	appfs "github.com/trezcool/podesk/fs"
	logsvc "github.com/trezcool/podesk/services/logger"
)

func TestConsoleServiceMock(t *testing.T) {
	conf := core.NewTestConfig()
	logger := logsvc.NewNopLogger()
	core.ParseEmailTemplates(conf, appfs.FS, appfs.EmailTemplatesDir, logger)
	ClearSentMessages()
	t.Cleanup(ClearSentMessages)

	svc := NewConsoleServiceMock(conf, logger)
	to := []mail.Address{{Name: "Teacher", Address: "teacher@test.ph"}}
	svc.SendMessages(
		&core.EmailMessage{To: to, Subject: "Plain", BodyStr: "hello"},
		&core.EmailMessage{Subject: "Nobody", BodyStr: "lost"},
		&core.EmailMessage{To: to, Subject: "Empty"},
		&core.EmailMessage{
			To:           to,
			Subject:      "Password Reset",
			TemplateName: "password_reset",
			TemplateData: map[string]interface{}{"Name": "Teacher", "URL": "http://localhost/reset?uid=1"},
		},
	)

	msgs := LastSentMessages(10)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].TextContent)
	assert.Empty(t, msgs[0].HTMLContent)
	assert.Contains(t, msgs[1].TextContent, "http://localhost/reset?uid=1")

	require.Len(t, LastSentMessages(1), 1)
	assert.Equal(t, "Password Reset", LastSentMessages(1)[0].Subject)

	ClearSentMessages()
	assert.Empty(t, LastSentMessages(1))
}

func TestConsoleService(t *testing.T) {
	conf := core.NewTestConfig()
	ClearSentMessages()
	t.Cleanup(ClearSentMessages)

	svc := NewConsoleService(conf, logsvc.NewNopLogger()).(*consoleService)
	msg := &core.EmailMessage{
		To:      []mail.Address{{Address: "pod@test.ph"}},
		Cc:      []mail.Address{{Address: "adviser@test.ph"}},
		Subject: "Call slip",
		BodyStr: "See attached.",
	}
	require.NoError(t, msg.Attach(strings.NewReader("%PDF-1.3 fake"), "call-slip.pdf", "application/pdf"))

	svc.SendMessages(msg, &core.EmailMessage{To: msg.To, BodyStr: "second"})
	svc.Wait()

	msgs := LastSentMessages(10)
	require.Len(t, msgs, 2)
	var withAttachment int
	for _, m := range msgs {
		if m.HasAttachments() {
			withAttachment++
			assert.Equal(t, "application/pdf", m.Attachments[0].ContentType)
		}
	}
	assert.Equal(t, 1, withAttachment)
}

func TestJoinAddresses(t *testing.T) {
	svc := consoleService{}
	got := svc.joinAddresses([]mail.Address{{Name: "A", Address: "a@test.ph"}, {Address: "b@test.ph"}})
	assert.Equal(t, `"A" <a@test.ph>, <b@test.ph>`, got)
}
