package setup

import (
	"github.com/The127/ioc"
	"github.com/The127/mediatr"
	"github.com/the127/blobyard/internal/commands"
	"github.com/the127/blobyard/internal/queries"
)

func Mediator(dc *ioc.DependencyCollection) {
	mediator := mediatr.NewMediator()

	mediatr.RegisterHandler(mediator, commands.HandleStartUpload)
	mediatr.RegisterHandler(mediator, queries.HandleGetUploadStatus)
	mediatr.RegisterHandler(mediator, commands.HandleAppendChunk)
	mediatr.RegisterHandler(mediator, commands.HandleCompleteUpload)
	mediatr.RegisterHandler(mediator, commands.HandleDeleteUpload)

	mediatr.RegisterHandler(mediator, queries.HandleHeadBlob)

	ioc.RegisterSingleton(dc, func(_ *ioc.DependencyProvider) mediatr.Mediator {
		return mediator
	})
}
