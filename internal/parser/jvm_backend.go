package parser

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/1homsi/reachscan/internal/model"
)

// JVMBackend parses .class files directly with encoding/binary. No JVM
// bytecode/classfile library exists anywhere in the example corpus (the
// closest analogues are Go/JS/PHP source scanners), so, like the regex
// source backends, it is built on the standard library rather than a
// third-party parser;
// the classfile format itself (constant pool + method + Code attribute
// layout) is fixed by the JVM spec and small enough to read directly.
type JVMBackend struct{}

func NewJVMBackend() *JVMBackend { return &JVMBackend{} }

func (JVMBackend) Language() string { return "java" }

func (JVMBackend) Parse(ctx context.Context, pkg model.PackageRecord, root string) (*ParsedPackage, error) {
	result := &ParsedPackage{Package: pkg.ID, Root: root, Language: "java"}

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".class" {
			return nil
		}
		data, ferr := os.ReadFile(path)
		if ferr != nil {
			return nil
		}
		cf, perr := parseClassFile(data)
		if perr != nil {
			return nil // skip unparseable class file, not a fatal error for the package
		}
		result.Files = append(result.Files, classFileToParsedFile(pkg.ID, path, cf))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(result.Files) == 0 {
		result.Opaque = true
		result.Reason = "no .class files found"
	}
	return result, nil
}

// --- constant pool -----------------------------------------------------

const (
	cpUtf8              = 1
	cpInteger           = 3
	cpFloat             = 4
	cpLong              = 5
	cpDouble            = 6
	cpClass             = 7
	cpString            = 8
	cpFieldref          = 9
	cpMethodref         = 10
	cpInterfaceMethodref = 11
	cpNameAndType       = 12
	cpMethodHandle      = 15
	cpMethodType        = 16
	cpDynamic           = 17
	cpInvokeDynamic     = 18
	cpModule            = 19
	cpPackage           = 20
)

type cpEntry struct {
	tag  byte
	a, b uint16 // interpretation depends on tag
	str  string // for Utf8
}

type classFile struct {
	constants   []cpEntry // 1-indexed; index 0 unused
	thisClass   string
	superClass  string
	interfaces  []string
	accessFlags uint16
	methods     []classMethod
}

// isAbstractType reports whether this class file declares an interface or
// an abstract class, per the JVM spec's ACC_INTERFACE/ACC_ABSTRACT flags.
func (cf *classFile) isAbstractType() bool {
	return cf.accessFlags&(accInterface|accAbstract) != 0
}

type classMethod struct {
	name       string
	descriptor string
	accessFlags uint16
	code       []byte
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) u1() (byte, error) {
	if r.pos+1 > len(r.data) {
		return 0, fmt.Errorf("unexpected EOF")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) u2() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("unexpected EOF")
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *byteReader) u4() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("unexpected EOF")
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) skip(n int) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("unexpected EOF")
	}
	r.pos += n
	return nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("unexpected EOF")
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func parseClassFile(data []byte) (*classFile, error) {
	r := &byteReader{data: data}
	magic, err := r.u4()
	if err != nil || magic != 0xCAFEBABE {
		return nil, fmt.Errorf("not a class file")
	}
	if _, err := r.u2(); err != nil { // minor
		return nil, err
	}
	if _, err := r.u2(); err != nil { // major
		return nil, err
	}

	cpCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	constants := make([]cpEntry, cpCount)
	for i := 1; i < int(cpCount); i++ {
		tag, err := r.u1()
		if err != nil {
			return nil, err
		}
		switch tag {
		case cpUtf8:
			n, err := r.u2()
			if err != nil {
				return nil, err
			}
			b, err := r.bytes(int(n))
			if err != nil {
				return nil, err
			}
			constants[i] = cpEntry{tag: tag, str: string(b)}
		case cpClass, cpString, cpMethodType, cpModule, cpPackage:
			a, err := r.u2()
			if err != nil {
				return nil, err
			}
			constants[i] = cpEntry{tag: tag, a: a}
		case cpFieldref, cpMethodref, cpInterfaceMethodref, cpNameAndType, cpDynamic, cpInvokeDynamic:
			a, err := r.u2()
			if err != nil {
				return nil, err
			}
			b, err := r.u2()
			if err != nil {
				return nil, err
			}
			constants[i] = cpEntry{tag: tag, a: a, b: b}
		case cpInteger, cpFloat:
			if err := r.skip(4); err != nil {
				return nil, err
			}
		case cpLong, cpDouble:
			if err := r.skip(8); err != nil {
				return nil, err
			}
			i++ // long/double occupy two constant pool slots
		case cpMethodHandle:
			if _, err := r.u1(); err != nil {
				return nil, err
			}
			if _, err := r.u2(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown constant pool tag %d", tag)
		}
	}

	classAccessFlags, err := r.u2()
	if err != nil {
		return nil, err
	}
	thisClassIdx, err := r.u2()
	if err != nil {
		return nil, err
	}
	superClassIdx, err := r.u2()
	if err != nil {
		return nil, err
	}

	ifaceCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	interfaces := make([]string, 0, ifaceCount)
	for i := 0; i < int(ifaceCount); i++ {
		idx, err := r.u2()
		if err != nil {
			return nil, err
		}
		interfaces = append(interfaces, utf8Of(constants, classNameIndex(constants, idx)))
	}

	fieldCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(fieldCount); i++ {
		if err := skipMember(r); err != nil {
			return nil, err
		}
	}

	methodCount, err := r.u2()
	if err != nil {
		return nil, err
	}
	cf := &classFile{
		constants:   constants,
		thisClass:   utf8Of(constants, classNameIndex(constants, thisClassIdx)),
		superClass:  utf8Of(constants, classNameIndex(constants, superClassIdx)),
		interfaces:  interfaces,
		accessFlags: classAccessFlags,
	}
	for i := 0; i < int(methodCount); i++ {
		m, err := readMethod(r, constants)
		if err != nil {
			return nil, err
		}
		cf.methods = append(cf.methods, m)
	}

	return cf, nil
}

func classNameIndex(constants []cpEntry, classIdx uint16) uint16 {
	if int(classIdx) >= len(constants) {
		return 0
	}
	return constants[classIdx].a
}

func utf8Of(constants []cpEntry, idx uint16) string {
	if int(idx) >= len(constants) {
		return ""
	}
	return constants[idx].str
}

func skipMember(r *byteReader) error {
	if _, err := r.u2(); err != nil { // access_flags
		return err
	}
	if _, err := r.u2(); err != nil { // name_index
		return err
	}
	if _, err := r.u2(); err != nil { // descriptor_index
		return err
	}
	return skipAttributes(r)
}

func skipAttributes(r *byteReader) error {
	count, err := r.u2()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		if _, err := r.u2(); err != nil { // attribute_name_index
			return err
		}
		length, err := r.u4()
		if err != nil {
			return err
		}
		if err := r.skip(int(length)); err != nil {
			return err
		}
	}
	return nil
}

func readMethod(r *byteReader, constants []cpEntry) (classMethod, error) {
	accessFlags, err := r.u2()
	if err != nil {
		return classMethod{}, err
	}
	nameIdx, err := r.u2()
	if err != nil {
		return classMethod{}, err
	}
	descIdx, err := r.u2()
	if err != nil {
		return classMethod{}, err
	}
	m := classMethod{
		name:        utf8Of(constants, nameIdx),
		descriptor:  utf8Of(constants, descIdx),
		accessFlags: accessFlags,
	}

	attrCount, err := r.u2()
	if err != nil {
		return classMethod{}, err
	}
	for i := 0; i < int(attrCount); i++ {
		attrNameIdx, err := r.u2()
		if err != nil {
			return classMethod{}, err
		}
		length, err := r.u4()
		if err != nil {
			return classMethod{}, err
		}
		attrName := utf8Of(constants, attrNameIdx)
		if attrName == "Code" {
			start := r.pos
			if err := r.skip(int(length)); err != nil {
				return classMethod{}, err
			}
			codeBlock := r.data[start : start+int(length)]
			m.code = extractCode(codeBlock)
			continue
		}
		if err := r.skip(int(length)); err != nil {
			return classMethod{}, err
		}
	}
	return m, nil
}

// extractCode pulls the code[] byte slice out of a Code attribute's body
// (max_stack, max_locals, code_length, code, ...).
func extractCode(body []byte) []byte {
	cr := &byteReader{data: body}
	if _, err := cr.u2(); err != nil { // max_stack
		return nil
	}
	if _, err := cr.u2(); err != nil { // max_locals
		return nil
	}
	codeLen, err := cr.u4()
	if err != nil {
		return nil
	}
	code, err := cr.bytes(int(codeLen))
	if err != nil {
		return nil
	}
	return code
}

// --- bytecode scan for method invocations -------------------------------

const (
	opInvokeVirtual   = 0xB6
	opInvokeSpecial   = 0xB7
	opInvokeStatic    = 0xB8
	opInvokeInterface = 0xB9
	opInvokeDynamic   = 0xBA
)

type invocation struct {
	class, name, descriptor string
	dynamic                 bool
	viaInterface            bool // true for invokeinterface call sites (§4.6 dispatch fan-out)
}

// scanInvocations walks code looking only for the five invoke* opcodes,
// skipping every other instruction by its fixed/variable operand width so
// the byte offset stays aligned. tableswitch/lookupswitch/wide are the
// only variable-width instructions the JVM spec defines.
func scanInvocations(code []byte, constants []cpEntry) []invocation {
	var out []invocation
	i := 0
	for i < len(code) {
		op := code[i]
		switch op {
		case opInvokeVirtual, opInvokeSpecial, opInvokeStatic:
			if i+3 > len(code) {
				return out
			}
			idx := binary.BigEndian.Uint16(code[i+1:])
			out = append(out, methodRefInvocation(constants, idx, false))
			i += 3
		case opInvokeInterface:
			if i+5 > len(code) {
				return out
			}
			idx := binary.BigEndian.Uint16(code[i+1:])
			out = append(out, methodRefInvocation(constants, idx, true))
			i += 5
		case opInvokeDynamic:
			if i+5 > len(code) {
				return out
			}
			out = append(out, invocation{dynamic: true})
			i += 5
		case 0xAA: // tableswitch
			i = skipTableSwitch(code, i)
		case 0xAB: // lookupswitch
			i = skipLookupSwitch(code, i)
		case 0xC4: // wide
			i = skipWide(code, i)
		default:
			i += 1 + opcodeOperandWidth(op)
		}
	}
	return out
}

func methodRefInvocation(constants []cpEntry, idx uint16, viaInterface bool) invocation {
	if int(idx) >= len(constants) {
		return invocation{dynamic: true}
	}
	ref := constants[idx]
	if ref.tag != cpMethodref && ref.tag != cpInterfaceMethodref {
		return invocation{dynamic: true}
	}
	className := utf8Of(constants, classNameIndex(constants, ref.a))
	if int(ref.b) >= len(constants) {
		return invocation{class: className, dynamic: true}
	}
	nt := constants[ref.b]
	return invocation{
		class:        className,
		name:         utf8Of(constants, nt.a),
		descriptor:   utf8Of(constants, nt.b),
		viaInterface: viaInterface,
	}
}

func skipTableSwitch(code []byte, i int) int {
	p := i + 1
	for p%4 != 0 {
		p++
	}
	if p+12 > len(code) {
		return len(code)
	}
	low := int32(binary.BigEndian.Uint32(code[p+4:]))
	high := int32(binary.BigEndian.Uint32(code[p+8:]))
	p += 12
	n := int(high-low+1) * 4
	return p + n
}

func skipLookupSwitch(code []byte, i int) int {
	p := i + 1
	for p%4 != 0 {
		p++
	}
	if p+8 > len(code) {
		return len(code)
	}
	npairs := int32(binary.BigEndian.Uint32(code[p+4:]))
	p += 8
	return p + int(npairs)*8
}

func skipWide(code []byte, i int) int {
	if i+2 > len(code) {
		return len(code)
	}
	sub := code[i+1]
	if sub == 0x84 { // iinc
		return i + 6
	}
	return i + 4
}

// opcodeOperandWidth returns the number of operand bytes following a
// (non-switch, non-wide) opcode, per the JVM spec's fixed-width
// instruction table. Instructions not listed here (reserved/unused
// opcodes) default to 0, which is safe: they don't appear in real code.
func opcodeOperandWidth(op byte) int {
	switch op {
	case 0x10, 0x12, 0x15, 0x16, 0x17, 0x18, 0x19, // bipush, ldc, *load
		0x36, 0x37, 0x38, 0x39, 0x3a, // *store
		0xbc, // newarray
		0xa9: // ret
		return 1
	case 0x11, 0x13, 0x14, // sipush, ldc_w, ldc2_w
		0x84, // iinc
		0x99, 0x9a, 0x9b, 0x9c, 0x9d, 0x9e, 0x9f, 0xa0, 0xa1, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6, // if*
		0xa7, 0xa8, // goto, jsr
		0xb2, 0xb3, 0xb4, 0xb5, // getstatic..putfield
		0xbb, 0xbd, 0xc0, 0xc1, // new, anewarray, checkcast, instanceof
		0xc6, 0xc7: // ifnull, ifnonnull
		return 2
	case 0xc5: // multianewarray
		return 3
	case 0xb9, 0xba: // invokeinterface, invokedynamic handled above; fallback width
		return 4
	case 0xc8, 0xc9: // goto_w, jsr_w
		return 4
	default:
		return 0
	}
}

func classFileToParsedFile(pkgID model.PackageId, path string, cf *classFile) ParsedFile {
	file := ParsedFile{
		Path:           path,
		ClassName:      cf.thisClass,
		SuperClass:     cf.superClass,
		Interfaces:     cf.interfaces,
		IsAbstractType: cf.isAbstractType(),
	}
	for _, m := range cf.methods {
		fn := model.FunctionNode{
			Symbol: model.SymbolId{
				Package:    pkgID,
				ModulePath: cf.thisClass,
				Name:       m.name,
				HasArity:   true,
				Arity:      strings.Count(m.descriptor, ";") + strings.Count(m.descriptor, "I") + strings.Count(m.descriptor, "Z"),
			},
			Visibility: jvmVisibility(m.accessFlags),
			File:       path,
		}
		for _, inv := range scanInvocations(m.code, cf.constants) {
			if inv.dynamic {
				fn.Calls = append(fn.Calls, model.CallDescriptor{
					Kind: model.CallUnresolvedDynamic, Reason: "invokedynamic or unresolved method reference", File: path,
				})
				continue
			}
			if inv.class == cf.thisClass {
				fn.Calls = append(fn.Calls, model.CallDescriptor{
					Kind: model.CallLocal,
					Target: model.SymbolId{Package: pkgID, ModulePath: cf.thisClass, Name: inv.name},
					File:  path,
				})
				continue
			}
			call := model.CallDescriptor{
				Kind:    model.CallExternalRef,
				Binding: model.ImportBinding{TargetModule: strings.ReplaceAll(inv.class, "/", ".")},
				Callee:  inv.name,
				File:    path,
			}
			if inv.viaInterface {
				call.VirtualDispatch = true
				call.DispatchClass = inv.class
			}
			fn.Calls = append(fn.Calls, call)
		}
		file.Functions = append(file.Functions, fn)
	}
	return file
}

const (
	accPublic    = 0x0001
	accPrivate   = 0x0002
	accInterface = 0x0200
	accAbstract  = 0x0400
)

func jvmVisibility(flags uint16) model.Visibility {
	switch {
	case flags&accPublic != 0:
		return model.VisibilityPublic
	case flags&accPrivate != 0:
		return model.VisibilityPrivate
	default:
		return model.VisibilityPackageInternal
	}
}
