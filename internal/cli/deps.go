package cli

import (
	"context"

	"github.com/shaiso/rcctl/internal/domain"
	"github.com/shaiso/rcctl/internal/mq"
	"github.com/shaiso/rcctl/internal/remoteconfig"
	"github.com/shaiso/rcctl/internal/templatefile"
)

// TemplateClient — операции Remote Config API, которые использует CLI.
// Реализуется *remoteconfig.Client.
type TemplateClient interface {
	ProjectID() string
	Get(ctx context.Context) (*domain.Template, error)
	GetVersion(ctx context.Context, versionNumber int64) (*domain.Template, error)
	Publish(ctx context.Context, doc domain.Document, etag string, opts remoteconfig.PublishOptions) (*domain.Template, error)
	ListVersions(ctx context.Context, opts remoteconfig.ListOptions) (*domain.VersionList, error)
	Rollback(ctx context.Context, versionNumber int64) (*domain.Template, error)
}

// Notifier — получатель событий об изменении шаблона.
// Реализуется *mq.Notifier.
type Notifier interface {
	TemplatePublished(ctx context.Context, payload mq.TemplateEventPayload) error
	TemplateRolledBack(ctx context.Context, payload mq.TemplateEventPayload) error
}

// Deps — зависимости команд.
//
// Поля — функции, потому что значения появляются только после разбора
// флагов и загрузки конфигурации в PersistentPreRunE.
type Deps struct {
	// Client возвращает клиент API.
	Client func() (TemplateClient, error)

	// Store возвращает файл шаблона.
	Store func() *templatefile.Store

	// Output возвращает форматтер вывода.
	Output func() *Output

	// Notifier возвращает получателя событий или nil, если уведомления выключены.
	Notifier func() Notifier

	// Confirm запрашивает подтверждение у оператора.
	Confirm func(prompt string) (bool, error)

	// InvocationID возвращает идентификатор запуска для событий.
	InvocationID func() string
}

func (d *Deps) notifier() Notifier {
	if d.Notifier == nil {
		return nil
	}
	return d.Notifier()
}

func (d *Deps) invocationID() string {
	if d.InvocationID == nil {
		return ""
	}
	return d.InvocationID()
}
