// Package types defines the Reading shared by the aggregator, content servers
// and GET clients.
//
// A Reading is a flat JSON object of attribute name to scalar (string or
// number) carrying the station identity in its "id" attribute. Numbers are
// held as json.Number so an integer reading stays an integer when it is
// re-serialized. ParseReading decodes a JSON body; ParseKeyValue decodes the
// "key: value" text files content servers read their data from.
package types
