// Package pickle is a library for decoding/encoding Python's pickle format.
//
// Use Decoder to decode a pickle from input stream, for example:
//
//	d := pickle.NewDecoder(r)
//	obj, err := d.Decode() // obj is any representing decoded Python object
//
// Use Encoder to encode an object as pickle into output stream, for example:
//
//	e := pickle.NewEncoder(w)
//	err := e.Encode(obj)
//
// The following table summarizes mapping of basic types in between Python and Go:
//
//	Python	   Go
//	------	   --
//
//	None	↔  pickle.None
//	bool	↔  bool
//	int	↔  int64
//	int	←  int, intX, uintX
//	float	↔  float64
//	float	←  float32
//	complex	↔  complex128
//	list	↔  *pickle.List
//	list	←  []T
//	tuple	↔  pickle.Tuple
//	dict	↔  pickle.Dict
//	dict	←  map[K]V, struct
//	set	↔  pickle.Set
//
//	str        ↔  string         (+)
//	bytes      ↔  pickle.Bytes
//	bytearray  ↔  []byte
//
// (+) Python 2 str pickled with BINSTRING opcodes is decoded as string with
// one character per byte.
//
// Integers that do not fit into 64 bits are not supported and decoding them
// fails with ErrLongOverflow.
//
// # Python classes and instances
//
// References to Python classes are decoded as Class. Instances are created by
// constructors looked up in a Registry by module and class name. The default
// registry knows about:
//
//	Python				Go
//	------				--
//
//	datetime.datetime		time.Time (UTC)
//	datetime.date			pickle.Date
//	datetime.time			pickle.TimeOfDay
//	datetime.timedelta		pickle.TimeDelta
//	decimal.Decimal			*apd.Decimal
//	array.array			[]int8, []uint16, []float64, ... and string for 'c'/'u'
//	exceptions			*pickle.PythonException
//	anything else			pickle.ClassDict
//
// Applications can add their own constructors:
//
//	pickle.Register("myapp.models", "Point", pickle.ConstructorFunc(func(args pickle.Tuple) (any, error) {
//		...
//	}))
//
// Only registered constructors run, so it is safe to decode pickles from
// untrusted sources.
//
// # Pickle protocol versions
//
// Over the time the pickle stream format was evolving. The original protocol
// version 0 is human-readable with versions 1 and 2 extending the protocol in
// backward-compatible way with binary encodings for efficiency. Protocol
// version 2 is the highest protocol version that is understood by standard
// pickle module of Python2. Protocol version 3 added ways to represent Python
// bytes objects from Python3. Protocol version 4 further enhances on version 3
// and completely switches to binary-only encoding. Protocol version 5 added
// support for out-of-band data, which is not supported here. Please see
// https://docs.python.org/3/library/pickle.html#data-stream-format for details.
//
// On decoding the protocol is detected automatically.
//
// On encoding, for compatibility with Python2, pickles are produced with
// protocol 2. Bytes thus will be unpickled as str on Python2 and as bytes on
// Python3.
//
// # Persistent references
//
// Pickle was originally created for serialization in ZODB (http://zodb.org)
// object database, where on-disk objects can reference each other similarly to
// how one in-RAM object can have a reference to another in-RAM object.
//
// Decoding a pickle with persistent reference requires DecoderConfig.PersistentLoad:
//
//	d := pickle.NewDecoderWithConfig(r, &pickle.DecoderConfig{
//		PersistentLoad: ...
//	})
//	obj, err := d.Decode()
//
// Similarly, for encoding, an application can hook into serialization process
// with EncoderConfig.PersistentID and turn some in-RAM objects into
// persistent references.
//
// # Errors
//
// Errors are classified with errors.Is against ErrMalformed, ErrUnsupported,
// ErrUnresolvedReference and the other Err* values. IsMalformed,
// IsUnsupported and IsInternal group them by how callers usually react.
package pickle
