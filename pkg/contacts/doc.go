// Package contacts holds the contact entity shared by the service, the
// channel plugin and the client.
//
// A Contact is assembled from many heterogeneous data rows and crosses the
// channel as a plain map (see Contact.ToMap and FromMap). Phone, email and
// postal labels are translated to and from the platform's integer type codes
// through fixed tables; labels outside a table are stored as custom labels.
package contacts
