package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Mountable interface {
	Handle() http.Handler
}

// RouterOptions selects the services to mount. Nil services are skipped.
type RouterOptions struct {
	Subscription Mountable
	Usage        Mountable
	Payments     Mountable
}

// Router mounts the billing services on a fresh chi router.
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	if opts.Subscription != nil {
		r.Mount("/subscription", opts.Subscription.Handle())
	}
	if opts.Usage != nil {
		r.Mount("/usage", opts.Usage.Handle())
	}
	if opts.Payments != nil {
		r.Mount("/payments", opts.Payments.Handle())
	}

	return r
}
