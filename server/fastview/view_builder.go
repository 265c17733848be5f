package fastview

import (
	"context"
	"errors"

	channerics "github.com/niceyeti/channerics/channels"
)

// ViewBuilder wires a data-model source through a view-model conversion and
// broadcasts the result to one or more views.
type ViewBuilder[DataModel any, ViewModel any] struct {
	source   <-chan DataModel
	convert  func(DataModel) ViewModel
	builders []ViewBuilderFunc[ViewModel]
	done     <-chan struct{} // Okay if nil
}

// ViewBuilderFunc builds a view from a 'done' channel and its view-model channel.
type ViewBuilderFunc[ViewModel any] func(<-chan struct{}, <-chan ViewModel) ViewComponent

// ErrNoViews is returned when Build() is called before the caller has added any views.
var ErrNoViews error = errors.New("no views to build: WithView must be called")

// ErrNoModel is returned when the builder has no source or conversion.
var ErrNoModel error = errors.New("no model specified: source and conversion are required")

// NewViewBuilder returns a builder reading source and converting each item with convert.
func NewViewBuilder[DataModel any, ViewModel any](
	source <-chan DataModel,
	convert func(DataModel) ViewModel,
) *ViewBuilder[DataModel, ViewModel] {
	return &ViewBuilder[DataModel, ViewModel]{
		source:  source,
		convert: convert,
	}
}

// WithContext closes all downstream channels when ctx is cancelled.
func (vb *ViewBuilder[DataModel, ViewModel]) WithContext(ctx context.Context) *ViewBuilder[DataModel, ViewModel] {
	vb.done = ctx.Done()
	return vb
}

// WithView adds a view; Build returns views in the order they were added.
func (vb *ViewBuilder[DataModel, ViewModel]) WithView(build ViewBuilderFunc[ViewModel]) *ViewBuilder[DataModel, ViewModel] {
	vb.builders = append(vb.builders, build)
	return vb
}

// Build converts the source once per item and hands every view its own copy of
// the view-model stream.
func (vb *ViewBuilder[DataModel, ViewModel]) Build() ([]ViewComponent, error) {
	if vb.source == nil || vb.convert == nil {
		return nil, ErrNoModel
	}
	if len(vb.builders) == 0 {
		return nil, ErrNoViews
	}

	vmChans := channerics.Broadcast(
		vb.done,
		channerics.Convert(vb.done, vb.source, vb.convert),
		len(vb.builders))
	views := make([]ViewComponent, 0, len(vb.builders))
	for i, build := range vb.builders {
		views = append(views, build(vb.done, vmChans[i]))
	}
	return views, nil
}
